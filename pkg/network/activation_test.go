package network

import (
	"math"
	"testing"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationValues(t *testing.T) {
	assert.Equal(t, 0.7, Identity.F(0.7))
	assert.Equal(t, 0.5, Logistic.F(0))
	assert.Equal(t, 0.0, HyperbolicTangent.F(0))
	assert.Equal(t, 1.0, RadialBasis.F(0))
	assert.InDelta(t, math.Exp(-4), RadialBasis.F(2), 1e-15)
}

func TestActivationDerivativeMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	for _, a := range []Activation{Identity, Logistic, HyperbolicTangent, RadialBasis} {
		for _, x := range []float64{-1.5, -0.3, 0, 0.4, 2} {
			numeric := (a.F(x+h) - a.F(x-h)) / (2 * h)
			assert.InDelta(t, numeric, a.DF(x, a.F(x)), 1e-6, "%v at %v", a, x)
		}
	}
}

func TestActivationVectorForms(t *testing.T) {
	sums := maths.NewVectorFrom([]float64{-1, 0, 1})
	out := Logistic.Apply(sums)
	assert.InDelta(t, 0.5, out.At(1), 1e-15)
	d := Logistic.Derivative(sums, out)
	assert.InDelta(t, 0.25, d.At(1), 1e-15)
	assert.Equal(t, 3, d.Len())
}

func TestParseActivation(t *testing.T) {
	for _, a := range []Activation{Identity, Logistic, HyperbolicTangent, RadialBasis} {
		text, err := a.MarshalText()
		require.NoError(t, err)
		var got Activation
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, a, got)
	}

	a, err := ParseActivation(" Sigmoid ")
	require.NoError(t, err)
	assert.Equal(t, Logistic, a)

	_, err = ParseActivation("relu")
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))

	assert.Equal(t, "Activation(9)", Activation(9).String())
	_, err = Activation(9).MarshalText()
	assert.Error(t, err)
}
