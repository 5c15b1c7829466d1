package training

import (
	"strconv"
	"strings"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// WeightUpdate 权重更新策略
type WeightUpdate int

const (
	// ImmediateWithMomentum 每个样本之后立即更新（在线学习）
	ImmediateWithMomentum WeightUpdate = iota
	// BatchAccumulateWithMomentum 整轮累加后统一更新
	BatchAccumulateWithMomentum
)

// RateAdaptation 学习率自适应策略
type RateAdaptation int

const (
	NoAdaptative RateAdaptation = iota
	// BoldDriver 误差下降则放大学习率，否则撤销本轮并缩小学习率
	BoldDriver
)

var (
	weightUpdateNames   = [...]string{"immediate", "batch"}
	rateAdaptationNames = [...]string{"none", "bolddriver"}
)

func (w WeightUpdate) String() string {
	if w < 0 || int(w) >= len(weightUpdateNames) {
		return "WeightUpdate(" + strconv.Itoa(int(w)) + ")"
	}
	return weightUpdateNames[w]
}

func (r RateAdaptation) String() string {
	if r < 0 || int(r) >= len(rateAdaptationNames) {
		return "RateAdaptation(" + strconv.Itoa(int(r)) + ")"
	}
	return rateAdaptationNames[r]
}

func parseName(names []string, text string) (int, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	for i, n := range names {
		if n == text {
			return i, true
		}
	}
	return 0, false
}

func (w WeightUpdate) MarshalText() ([]byte, error) {
	if w < 0 || int(w) >= len(weightUpdateNames) {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "未知的权重更新策略 %d", int(w))
	}
	return []byte(w.String()), nil
}

func (w *WeightUpdate) UnmarshalText(text []byte) error {
	i, ok := parseName(weightUpdateNames[:], string(text))
	if !ok {
		return errors.Wrapf(maths.ErrInvalidArgument, "未知的权重更新策略 %q", text)
	}
	*w = WeightUpdate(i)
	return nil
}

func (r RateAdaptation) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(rateAdaptationNames) {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "未知的学习率策略 %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *RateAdaptation) UnmarshalText(text []byte) error {
	i, ok := parseName(rateAdaptationNames[:], string(text))
	if !ok {
		return errors.Wrapf(maths.ErrInvalidArgument, "未知的学习率策略 %q", text)
	}
	*r = RateAdaptation(i)
	return nil
}

// Config 训练参数
type Config struct {
	LearningRate   float64        `yaml:"learning_rate" json:"learning_rate"`
	Momentum       float64        `yaml:"momentum" json:"momentum"`
	WeightUpdate   WeightUpdate   `yaml:"weight_update" json:"weight_update"`
	RateAdaptation RateAdaptation `yaml:"rate_adaptation" json:"rate_adaptation"`
	// BoldDriver 的放大/缩小系数
	IncreaseFactor float64 `yaml:"increase_factor" json:"increase_factor"`
	DecreaseFactor float64 `yaml:"decrease_factor" json:"decrease_factor"`
}

// DefaultConfig 在线学习，无学习率自适应
func DefaultConfig() Config {
	return Config{
		LearningRate:   0.25,
		Momentum:       0.9,
		WeightUpdate:   ImmediateWithMomentum,
		RateAdaptation: NoAdaptative,
		IncreaseFactor: 1.1,
		DecreaseFactor: 0.5,
	}
}

// Validate 检查参数范围
func (c Config) Validate() error {
	switch {
	case !(c.LearningRate > 0):
		return errors.Wrapf(maths.ErrInvalidArgument, "学习率 %v 必须为正", c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errors.Wrapf(maths.ErrInvalidArgument, "动量 %v 超出 [0,1)", c.Momentum)
	case c.WeightUpdate < 0 || int(c.WeightUpdate) >= len(weightUpdateNames):
		return errors.Wrapf(maths.ErrInvalidArgument, "未知的权重更新策略 %d", int(c.WeightUpdate))
	case c.RateAdaptation < 0 || int(c.RateAdaptation) >= len(rateAdaptationNames):
		return errors.Wrapf(maths.ErrInvalidArgument, "未知的学习率策略 %d", int(c.RateAdaptation))
	}
	if c.RateAdaptation == BoldDriver {
		if !(c.IncreaseFactor > 1) {
			return errors.Wrapf(maths.ErrInvalidArgument, "放大系数 %v 必须大于 1", c.IncreaseFactor)
		}
		if !(c.DecreaseFactor > 0 && c.DecreaseFactor < 1) {
			return errors.Wrapf(maths.ErrInvalidArgument, "缩小系数 %v 超出 (0,1)", c.DecreaseFactor)
		}
	}
	return nil
}
