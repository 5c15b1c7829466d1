package training

import (
	"log/slog"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/network"

	"github.com/pkg/errors"
)

/*
该文件实现误差反向传播训练器
状态机: Idle(epoch) -> Train() -> Idle(epoch+1)
每次 Train 是对样本集按当前顺序的一轮遍历，需要随机性时由调用方先打乱
*/

// Backpropagation 训练器，不拥有网络
type Backpropagation struct {
	net  *network.Mlp
	cfg  Config
	rate float64

	epoch int
	// 上一次实际施加到网络上的增量，用于动量项
	previous *network.Gradients

	// Logger 为空时不输出日志
	Logger *slog.Logger
}

// New 创建训练器，学习率从 cfg.LearningRate 开始
func New(net *network.Mlp, cfg Config) (*Backpropagation, error) {
	if net == nil {
		return nil, errors.Wrap(maths.ErrInvalidArgument, "网络为空")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backpropagation{
		net:      net,
		cfg:      cfg,
		rate:     cfg.LearningRate,
		previous: network.NewGradients(net),
	}, nil
}

func (b *Backpropagation) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Epoch 已完成的训练轮数
func (b *Backpropagation) Epoch() int { return b.epoch }

// LearningRate 当前学习率，BoldDriver 下会随训练变化
func (b *Backpropagation) LearningRate() float64 { return b.rate }

// Config 训练参数
func (b *Backpropagation) Config() Config { return b.cfg }

// Reset 清空动量历史和轮数，学习率恢复初始值
func (b *Backpropagation) Reset() {
	b.epoch = 0
	b.rate = b.cfg.LearningRate
	b.previous.Zero()
}

// boldDriverSession 一次 Train 调用内的回滚快照，每次调用重新构造
type boldDriverSession struct {
	snapshot *network.Mlp
	mse      float64
}

// Train 在 set 上训练一轮
// 空样本集不做任何更新，但轮数仍然加一
func (b *Backpropagation) Train(set *dataProcess.PatternSet) error {
	if set == nil || set.Len() == 0 {
		b.epoch++
		return nil
	}
	if set.InputSize() != b.net.Inputs() || set.OutputSize() != b.net.Outputs() {
		return errors.Wrapf(maths.ErrDimensionMismatch, "样本 %d→%d 与网络 %d→%d 不一致",
			set.InputSize(), set.OutputSize(), b.net.Inputs(), b.net.Outputs())
	}

	var session *boldDriverSession
	if b.cfg.RateAdaptation == BoldDriver {
		mse, err := b.net.CalcMSE(set)
		if err != nil {
			return err
		}
		session = &boldDriverSession{snapshot: b.net.Clone(), mse: mse}
	}

	grads := network.NewGradients(b.net)
	switch b.cfg.WeightUpdate {
	case ImmediateWithMomentum:
		for i := 0; i < set.Len(); i++ {
			if err := b.net.CalculateGradients(set.At(i), b.rate, grads); err != nil {
				return errors.WithMessagef(err, "样本 %d", i)
			}
			b.applyWithMomentum(grads)
		}
	case BatchAccumulateWithMomentum:
		accumulated := network.NewGradients(b.net)
		for i := 0; i < set.Len(); i++ {
			if err := b.net.CalculateGradients(set.At(i), b.rate, grads); err != nil {
				return errors.WithMessagef(err, "样本 %d", i)
			}
			accumulated.AddScaled(1, grads)
		}
		b.applyWithMomentum(accumulated)
	}

	if session != nil {
		if err := b.adaptRate(set, session); err != nil {
			return err
		}
	}
	b.epoch++
	return nil
}

// applyWithMomentum net += grads + momentum·previous，并记录本次增量
// grads 会被改写为实际施加的增量
func (b *Backpropagation) applyWithMomentum(grads *network.Gradients) {
	grads.AddScaled(b.cfg.Momentum, b.previous)
	b.net.Apply(grads)
	b.previous.CopyFrom(grads)
}

// adaptRate BoldDriver: 误差下降则放大学习率，否则恢复快照并缩小学习率
// 被撤销那一轮的增量不能进入下一轮的动量项
func (b *Backpropagation) adaptRate(set *dataProcess.PatternSet, session *boldDriverSession) error {
	mse, err := b.net.CalcMSE(set)
	if err != nil {
		return err
	}
	if mse < session.mse {
		b.rate *= b.cfg.IncreaseFactor
		return nil
	}
	if err := b.net.CopyFrom(session.snapshot); err != nil {
		return err
	}
	b.previous.Zero()
	b.rate *= b.cfg.DecreaseFactor
	b.logger().Debug("误差未下降，撤销本轮",
		"epoch", b.epoch+1, "before", session.mse, "after", mse, "rate", b.rate)
	return nil
}
