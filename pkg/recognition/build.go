package recognition

import (
	"context"
	"math/rand/v2"
	"time"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/eigenfaces"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/training"

	"github.com/pkg/errors"
)

// BuildOptions 一次性构建识别流程的参数
type BuildOptions struct {
	Options

	// Components 固定的特征脸个数，为 0 时由 Variance 决定
	Components int
	// Variance 特征脸需要解释的方差占比
	Variance  float64
	Hiddens   int
	Threshold float64
	// Seed 决定权重初始化和每轮打乱顺序
	Seed uint64
	Run  training.RunOptions
}

// Build 从身份图像开始完成全部步骤：特征分解、选择 K、生成样本、拟合归一化范围、配置并训练网络
func Build(ctx context.Context, subjects []dataProcess.Subject, opts BuildOptions) (*Pipeline, error) {
	if len(subjects) == 0 {
		return nil, errors.Wrap(maths.ErrEmptySet, "没有训练身份")
	}
	start := time.Now()

	model := eigenfaces.NewModel()
	model.Logger = opts.Logger
	identities := make([]string, 0, len(subjects))
	for _, s := range subjects {
		identities = append(identities, s.Label)
		for _, img := range s.Images {
			if err := model.AddImage(img); err != nil {
				return nil, errors.WithMessagef(err, "身份 %q", s.Label)
			}
		}
	}
	if err := model.CalculateEigenvalues(); err != nil {
		return nil, err
	}

	k := opts.Components
	if k == 0 {
		var err error
		if k, err = model.NumComponentsFor(opts.Variance); err != nil {
			return nil, err
		}
	}
	if err := model.CalculateEigenfaces(k); err != nil {
		return nil, err
	}

	p, err := New(model, identities, opts.Options)
	if err != nil {
		return nil, err
	}
	if err := p.Configure(opts.Hiddens, opts.Threshold, rand.NewPCG(opts.Seed, opts.Seed^0x5eed)); err != nil {
		return nil, err
	}
	set, err := p.ConvertToPatterns(subjects)
	if err != nil {
		return nil, err
	}
	if err := p.CalcBoundsToNormalize(set); err != nil {
		return nil, err
	}
	if err := p.NormalizePatterns(set); err != nil {
		return nil, err
	}

	run := opts.Run
	if run.Shuffle == nil {
		run.Shuffle = rand.New(rand.NewPCG(opts.Seed+1, opts.Seed^0x5eed))
	}
	epochs, err := p.Train(ctx, set, run)
	if err != nil {
		return nil, err
	}

	p.logger().Info("识别流程构建完成",
		"identities", len(identities), "images", model.NumImages(), "components", k,
		"hiddens", opts.Hiddens, "epochs", epochs, "elapsed", time.Since(start))
	return p, nil
}
