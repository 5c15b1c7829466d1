package network

import (
	"math"
	"strconv"
	"strings"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

/*
该文件包含网络可选的激活函数
每种激活函数是无状态的 (f, df) 对，df 同时接收加权和与已经算好的激活值，避免重复计算
*/

// Activation 激活函数种类，取值集合固定
type Activation int

const (
	Identity Activation = iota
	Logistic
	HyperbolicTangent
	RadialBasis
)

var activationNames = [...]string{
	Identity:          "identity",
	Logistic:          "logistic",
	HyperbolicTangent: "tanh",
	RadialBasis:       "rbf",
}

func (a Activation) valid() bool { return a >= Identity && a <= RadialBasis }

func (a Activation) String() string {
	if !a.valid() {
		return "Activation(" + strconv.Itoa(int(a)) + ")"
	}
	return activationNames[a]
}

// ParseActivation 按名称解析激活函数，大小写不敏感
func ParseActivation(name string) (Activation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range activationNames {
		if n == name {
			return Activation(i), nil
		}
	}
	switch name {
	case "sigmoid":
		return Logistic, nil
	case "hyperbolictangent":
		return HyperbolicTangent, nil
	case "radialbasis":
		return RadialBasis, nil
	}
	return 0, errors.Wrapf(maths.ErrInvalidArgument, "未知的激活函数 %q", name)
}

func (a Activation) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "未知的激活函数 %d", int(a))
	}
	return []byte(activationNames[a]), nil
}

func (a *Activation) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// F 激活函数
func (a Activation) F(x float64) float64 {
	switch a {
	case Logistic:
		return 1 / (1 + math.Exp(-x))
	case HyperbolicTangent:
		return math.Tanh(x)
	case RadialBasis:
		return math.Exp(-x * x)
	default:
		return x
	}
}

// DF 导数，x 为加权和，fx 为 F(x)
func (a Activation) DF(x, fx float64) float64 {
	switch a {
	case Logistic:
		return fx * (1 - fx)
	case HyperbolicTangent:
		return 1 - fx*fx
	case RadialBasis:
		return -2 * x * fx
	default:
		return 1
	}
}

// Apply 对向量逐元素求激活值
func (a Activation) Apply(sums *maths.Vector[float64]) *maths.Vector[float64] {
	out := maths.NewVector[float64](sums.Len())
	for i := 0; i < sums.Len(); i++ {
		out.Set(i, a.F(sums.At(i)))
	}
	return out
}

// Derivative 对向量逐元素求导数
func (a Activation) Derivative(sums, activations *maths.Vector[float64]) *maths.Vector[float64] {
	out := maths.NewVector[float64](sums.Len())
	for i := 0; i < sums.Len(); i++ {
		out.Set(i, a.DF(sums.At(i), activations.At(i)))
	}
	return out
}
