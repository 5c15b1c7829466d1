package training

import (
	"context"
	"math/rand/v2"
	"testing"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/network"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xorSet(t *testing.T) *dataProcess.PatternSet {
	t.Helper()
	set, err := dataProcess.NewPatternSet(
		dataProcess.NewPattern([]float64{0, 0}, []float64{0}),
		dataProcess.NewPattern([]float64{0, 1}, []float64{1}),
		dataProcess.NewPattern([]float64{1, 0}, []float64{1}),
		dataProcess.NewPattern([]float64{1, 1}, []float64{0}),
	)
	require.NoError(t, err)
	return set
}

func randomNet(t *testing.T, seed uint64, n, h, o int, act network.Activation, min, max float64) *network.Mlp {
	t.Helper()
	net, err := network.NewMlp(n, h, o, act, act)
	require.NoError(t, err)
	require.NoError(t, net.InitRandom(min, max, rand.NewPCG(seed, 17)))
	return net
}

// tinyNet 1-1-1 线性网络，W1=W2=0.5，偏置为零
func tinyNet(t *testing.T) (*network.Mlp, *dataProcess.PatternSet) {
	t.Helper()
	net, err := network.NewMlp(1, 1, 1, network.Identity, network.Identity)
	require.NoError(t, err)
	require.NoError(t, net.SetWeights(
		maths.NewMatrixFrom(1, 1, []float64{0.5}),
		maths.NewMatrixFrom(1, 1, []float64{0.5}),
		maths.NewVector[float64](1),
		maths.NewVector[float64](1),
	))
	set, err := dataProcess.NewPatternSet(dataProcess.NewPattern([]float64{1}, []float64{0}))
	require.NoError(t, err)
	return net, set
}

func config(rate, momentum float64, update WeightUpdate, adapt RateAdaptation) Config {
	cfg := DefaultConfig()
	cfg.LearningRate = rate
	cfg.Momentum = momentum
	cfg.WeightUpdate = update
	cfg.RateAdaptation = adapt
	return cfg
}

func sse(t *testing.T, net *network.Mlp, set *dataProcess.PatternSet) float64 {
	t.Helper()
	v, err := net.CalcSSE(set)
	require.NoError(t, err)
	return v
}

func TestSingleBatchStepReducesSSE(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		net := randomNet(t, seed, 4, 3, 2, network.Logistic, -1, 1)
		set, err := dataProcess.NewPatternSet(dataProcess.NewPattern([]float64{0.2, -0.4, 0.9, 0.1}, []float64{1, 0}))
		require.NoError(t, err)

		before := sse(t, net, set)
		bp, err := New(net, config(0.01, 0, BatchAccumulateWithMomentum, NoAdaptative))
		require.NoError(t, err)
		require.NoError(t, bp.Train(set))
		assert.Less(t, sse(t, net, set), before, "seed %d", seed)
		assert.Equal(t, 1, bp.Epoch())
	}
}

func TestXORConvergesOnline(t *testing.T) {
	set := xorSet(t)
	net := randomNet(t, 1, 2, 3, 1, network.Logistic, -1, 1)
	bp, err := New(net, config(0.25, 0.9, ImmediateWithMomentum, NoAdaptative))
	require.NoError(t, err)

	epochs, err := bp.Run(context.Background(), set, RunOptions{MaxEpochs: 10000, TargetMSE: 0.001})
	require.NoError(t, err)
	mse, err := net.CalcMSE(set)
	require.NoError(t, err)
	require.Less(t, mse, 0.001)
	assert.Less(t, epochs, 10000)
	assert.Equal(t, epochs, bp.Epoch())
	for i := 0; i < set.Len(); i++ {
		_, out, err := net.Recall(set.At(i).Input)
		require.NoError(t, err)
		assert.InDelta(t, set.At(i).Output.At(0), out.At(0), 0.1)
	}
}

func TestImmediateEqualsBatchForSinglePattern(t *testing.T) {
	a := randomNet(t, 3, 3, 2, 2, network.HyperbolicTangent, -0.5, 0.5)
	b := a.Clone()
	set, err := dataProcess.NewPatternSet(dataProcess.NewPattern([]float64{1, 0.5, -1}, []float64{0, 1}))
	require.NoError(t, err)

	ba, err := New(a, config(0.1, 0, ImmediateWithMomentum, NoAdaptative))
	require.NoError(t, err)
	bb, err := New(b, config(0.1, 0, BatchAccumulateWithMomentum, NoAdaptative))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, ba.Train(set))
		require.NoError(t, bb.Train(set))
	}
	assert.True(t, a.W1().Equal(b.W1()))
	assert.True(t, a.W2().Equal(b.W2()))
	assert.True(t, a.B1().Equal(b.B1()))
	assert.True(t, a.B2().Equal(b.B2()))
}

func TestMomentumAddsPreviousDelta(t *testing.T) {
	net := randomNet(t, 8, 2, 2, 1, network.Logistic, -1, 1)
	manual := net.Clone()
	set, err := dataProcess.NewPatternSet(dataProcess.NewPattern([]float64{1, -1}, []float64{1}))
	require.NoError(t, err)

	bp, err := New(net, config(0.5, 0.75, ImmediateWithMomentum, NoAdaptative))
	require.NoError(t, err)
	require.NoError(t, bp.Train(set))
	require.NoError(t, bp.Train(set))

	first := network.NewGradients(manual)
	require.NoError(t, manual.CalculateGradients(set.At(0), 0.5, first))
	manual.Apply(first)
	second := network.NewGradients(manual)
	require.NoError(t, manual.CalculateGradients(set.At(0), 0.5, second))
	second.AddScaled(0.75, first)
	manual.Apply(second)

	assert.True(t, manual.W1().Equal(net.W1()))
	assert.True(t, manual.B2().Equal(net.B2()))
}

func TestBoldDriverIncreasesRate(t *testing.T) {
	net, set := tinyNet(t)
	bp, err := New(net, config(0.01, 0, BatchAccumulateWithMomentum, BoldDriver))
	require.NoError(t, err)

	before := sse(t, net, set)
	require.NoError(t, bp.Train(set))
	assert.Less(t, sse(t, net, set), before)
	assert.InDelta(t, 0.011, bp.LearningRate(), 1e-15)
}

func TestBoldDriverRollsBackWorseEpoch(t *testing.T) {
	net, set := tinyNet(t)
	original := net.Clone()
	bp, err := New(net, config(100, 0, BatchAccumulateWithMomentum, BoldDriver))
	require.NoError(t, err)

	require.NoError(t, bp.Train(set))
	assert.True(t, original.W1().Equal(net.W1()))
	assert.True(t, original.W2().Equal(net.W2()))
	assert.True(t, original.B1().Equal(net.B1()))
	assert.True(t, original.B2().Equal(net.B2()))
	assert.Equal(t, 50.0, bp.LearningRate())
	assert.Equal(t, 1, bp.Epoch())
}

func TestBoldDriverRollbackClearsMomentum(t *testing.T) {
	// 学习率 2 会使误差变大，撤销后以 1 重新训练，结果应与从 1 开始的新训练器一致
	a, set := tinyNet(t)
	b, _ := tinyNet(t)

	ba, err := New(a, config(2, 0.5, BatchAccumulateWithMomentum, BoldDriver))
	require.NoError(t, err)
	require.NoError(t, ba.Train(set))
	assert.Equal(t, 1.0, ba.LearningRate())
	require.NoError(t, ba.Train(set))

	bb, err := New(b, config(1, 0.5, BatchAccumulateWithMomentum, BoldDriver))
	require.NoError(t, err)
	require.NoError(t, bb.Train(set))

	assert.True(t, a.W1().Equal(b.W1()))
	assert.True(t, a.B2().Equal(b.B2()))
	assert.Equal(t, bb.LearningRate(), ba.LearningRate())
	assert.Equal(t, 2, ba.Epoch())
}

func TestTrainEmptySetIncrementsEpoch(t *testing.T) {
	net := randomNet(t, 1, 2, 2, 1, network.Logistic, -1, 1)
	before := net.Clone()
	bp, err := New(net, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, bp.Train(&dataProcess.PatternSet{}))
	assert.Equal(t, 1, bp.Epoch())
	assert.True(t, before.W1().Equal(net.W1()))
}

func TestTrainDimensionMismatch(t *testing.T) {
	net := randomNet(t, 1, 3, 2, 1, network.Logistic, -1, 1)
	bp, err := New(net, DefaultConfig())
	require.NoError(t, err)

	err = bp.Train(xorSet(t))
	assert.True(t, errors.Is(err, maths.ErrDimensionMismatch))
	assert.Equal(t, 0, bp.Epoch())
}

func TestTrainingIsDeterministic(t *testing.T) {
	run := func() *network.Mlp {
		net := randomNet(t, 21, 2, 4, 1, network.HyperbolicTangent, -0.5, 0.5)
		set := xorSet(t)
		bp, err := New(net, config(0.1, 0.5, ImmediateWithMomentum, BoldDriver))
		require.NoError(t, err)
		_, err = bp.Run(context.Background(), set, RunOptions{MaxEpochs: 50, Shuffle: rand.New(rand.NewPCG(4, 2))})
		require.NoError(t, err)
		return net
	}
	a, b := run(), run()
	assert.True(t, a.W1().Equal(b.W1()))
	assert.True(t, a.W2().Equal(b.W2()))
	assert.True(t, a.B1().Equal(b.B1()))
	assert.True(t, a.B2().Equal(b.B2()))
}

func TestResetClearsState(t *testing.T) {
	net, set := tinyNet(t)
	bp, err := New(net, config(0.01, 0.5, BatchAccumulateWithMomentum, BoldDriver))
	require.NoError(t, err)
	require.NoError(t, bp.Train(set))

	bp.Reset()
	assert.Equal(t, 0, bp.Epoch())
	assert.Equal(t, 0.01, bp.LearningRate())
}

func TestNewRejectsBadConfig(t *testing.T) {
	net := randomNet(t, 1, 2, 2, 1, network.Logistic, -1, 1)

	_, err := New(net, config(0, 0, ImmediateWithMomentum, NoAdaptative))
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
	_, err = New(net, config(0.1, 1, ImmediateWithMomentum, NoAdaptative))
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))

	cfg := config(0.1, 0, ImmediateWithMomentum, BoldDriver)
	cfg.DecreaseFactor = 1.5
	_, err = New(net, cfg)
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))

	_, err = New(nil, DefaultConfig())
	assert.True(t, errors.Is(err, maths.ErrInvalidArgument))
}
