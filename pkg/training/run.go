package training

import (
	"context"
	"math/rand/v2"
	"time"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// EpochReport 每轮结束后的训练状态
type EpochReport struct {
	Epoch        int     `json:"epoch"`
	MSE          float64 `json:"mse"`
	LearningRate float64 `json:"learning_rate"`
}

// RunOptions 多轮训练的停止条件
type RunOptions struct {
	// MaxEpochs 本次最多训练的轮数
	MaxEpochs int
	// TargetMSE 均方误差低于该值时停止，0 表示只受轮数限制
	TargetMSE float64
	// Shuffle 非空时每轮开始前用它打乱样本集
	Shuffle *rand.Rand
	// Progress 每轮结束后回调
	Progress func(EpochReport)
}

// Run 重复调用 Train 直到达到目标误差或轮数上限，返回本次执行的轮数
// 轮与轮之间检查 ctx，单轮训练本身不可中断
func (b *Backpropagation) Run(ctx context.Context, set *dataProcess.PatternSet, opts RunOptions) (int, error) {
	if opts.MaxEpochs < 1 {
		return 0, errors.Wrapf(maths.ErrInvalidArgument, "最大轮数 %d 必须为正", opts.MaxEpochs)
	}
	if set == nil || set.Len() == 0 {
		return 0, errors.Wrap(maths.ErrEmptySet, "训练集为空")
	}
	start := time.Now()
	initial, err := b.net.CalcMSE(set)
	if err != nil {
		return 0, err
	}
	b.logger().Info("开始训练",
		"patterns", set.Len(), "max_epochs", opts.MaxEpochs, "mse", initial,
		"weight_update", b.cfg.WeightUpdate, "rate_adaptation", b.cfg.RateAdaptation)

	executed := 0
	mse := initial
	for executed < opts.MaxEpochs {
		if err := ctx.Err(); err != nil {
			return executed, err
		}
		if opts.Shuffle != nil {
			set.Shuffle(opts.Shuffle)
		}
		if err := b.Train(set); err != nil {
			return executed, errors.WithMessagef(err, "第 %d 轮训练失败", b.epoch+1)
		}
		executed++

		if mse, err = b.net.CalcMSE(set); err != nil {
			return executed, err
		}
		report := EpochReport{Epoch: b.epoch, MSE: mse, LearningRate: b.rate}
		if opts.Progress != nil {
			opts.Progress(report)
		}
		b.logger().Debug("训练轮次", "epoch", report.Epoch, "mse", report.MSE, "rate", report.LearningRate)
		if mse < opts.TargetMSE {
			break
		}
	}

	b.logger().Info("训练结束",
		"epochs", executed, "mse", mse, "rate", b.rate, "elapsed", time.Since(start))
	return executed, nil
}
