package recognition

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"runtime"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/eigenfaces"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/network"
	"FaceRecDev/pkg/training"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

/*
该文件把特征脸、多层感知机和反向传播训练器组合为识别流程
图像 -> 特征空间投影 -> 按拟合范围归一化 -> Mlp.Recall -> 按判决规则得到身份
*/

// Options 识别流程的可调参数
type Options struct {
	HiddenActivation network.Activation
	OutputActivation network.Activation
	// 权重初始化区间
	InitMin float64
	InitMax float64

	Rule     DecisionRule
	Training training.Config

	// Logger 为空时不输出日志
	Logger *slog.Logger
}

// DefaultOptions 逻辑函数激活，arg-max 判决
func DefaultOptions() Options {
	return Options{
		HiddenActivation: network.Logistic,
		OutputActivation: network.Logistic,
		InitMin:          -1,
		InitMax:          1,
		Rule:             DecisionArgMax,
		Training:         training.DefaultConfig(),
	}
}

// Pipeline 识别流程，同一实例同一时间只能被一个训练会话使用
// 训练完成后 Recognize/Project 只读，可以并发调用
type Pipeline struct {
	model      *eigenfaces.Model
	identities []string
	index      map[string]int
	opts       Options

	net       *network.Mlp
	trainer   *training.Backpropagation
	threshold float64
	bounds    *Bounds
}

// New 用已计算出特征脸的模型和身份列表创建识别流程
func New(model *eigenfaces.Model, identities []string, opts Options) (*Pipeline, error) {
	if model == nil || model.NumComponents() == 0 {
		return nil, errors.Wrap(maths.ErrInvalidArgument, "特征脸模型尚未计算特征脸")
	}
	if len(identities) == 0 {
		return nil, errors.Wrap(maths.ErrInvalidArgument, "身份列表为空")
	}
	if !opts.Rule.valid() {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "未知的判决规则 %d", int(opts.Rule))
	}
	if err := opts.Training.Validate(); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(identities))
	for i, id := range identities {
		if _, dup := index[id]; dup {
			return nil, errors.Wrapf(maths.ErrInvalidArgument, "身份 %q 重复", id)
		}
		index[id] = i
	}
	return &Pipeline{
		model:      model,
		identities: append([]string(nil), identities...),
		index:      index,
		opts:       opts,
	}, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.opts.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.opts.Logger
}

// Identities 身份列表副本，下标与网络输出单元一一对应
func (p *Pipeline) Identities() []string { return append([]string(nil), p.identities...) }

// Model 特征脸模型
func (p *Pipeline) Model() *eigenfaces.Model { return p.model }

// Network 当前网络，Configure 之前为 nil
func (p *Pipeline) Network() *network.Mlp { return p.net }

// Bounds 拟合出的归一化范围副本，拟合之前为 nil
func (p *Pipeline) Bounds() *Bounds {
	if p.bounds == nil {
		return nil
	}
	return p.bounds.clone()
}

func (p *Pipeline) Threshold() float64 { return p.threshold }

func (p *Pipeline) Rule() DecisionRule { return p.opts.Rule }

// Epochs 累计训练轮数
func (p *Pipeline) Epochs() int {
	if p.trainer == nil {
		return 0
	}
	return p.trainer.Epoch()
}

// Configure 新建网络（输入为特征脸个数，输出为身份个数）并随机初始化
func (p *Pipeline) Configure(hiddens int, threshold float64, src rand.Source) error {
	net, err := network.NewMlp(p.model.NumComponents(), hiddens, len(p.identities),
		p.opts.HiddenActivation, p.opts.OutputActivation)
	if err != nil {
		return err
	}
	if err := net.InitRandom(p.opts.InitMin, p.opts.InitMax, src); err != nil {
		return err
	}
	return p.setNetwork(net, threshold)
}

func (p *Pipeline) setNetwork(net *network.Mlp, threshold float64) error {
	trainer, err := training.New(net, p.opts.Training)
	if err != nil {
		return err
	}
	trainer.Logger = p.opts.Logger
	p.net, p.trainer, p.threshold = net, trainer, threshold
	return nil
}

// Project 把图像投影到特征空间
func (p *Pipeline) Project(image *maths.Vector[float64]) (*maths.Vector[float64], error) {
	return p.model.Project(image)
}

// ConvertToPatterns 把每个身份的每张图像投影到特征空间，生成 one-hot 样本
// 投影并发进行，样本顺序与输入顺序一致
func (p *Pipeline) ConvertToPatterns(subjects []dataProcess.Subject) (*dataProcess.PatternSet, error) {
	type job struct {
		image *maths.Vector[float64]
		label int
	}
	var jobs []job
	for _, s := range subjects {
		label, ok := p.index[s.Label]
		if !ok {
			return nil, errors.Wrapf(maths.ErrInvalidArgument, "身份 %q 不在身份列表中", s.Label)
		}
		for _, img := range s.Images {
			jobs = append(jobs, job{image: img, label: label})
		}
	}

	patterns := make([]*dataProcess.Pattern, len(jobs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		g.Go(func() error {
			features, err := p.model.Project(j.image)
			if err != nil {
				return errors.WithMessagef(err, "第 %d 张图像", i)
			}
			target, err := dataProcess.OneHot(j.label, len(p.identities))
			if err != nil {
				return err
			}
			patterns[i] = &dataProcess.Pattern{Input: features, Output: target}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dataProcess.NewPatternSet(patterns...)
}

// CalcBoundsToNormalize 在参考样本集上拟合归一化范围，之后不再重新拟合
func (p *Pipeline) CalcBoundsToNormalize(set *dataProcess.PatternSet) error {
	bounds, err := fitBounds(set)
	if err != nil {
		return err
	}
	p.bounds = bounds
	return nil
}

// NormalizePatterns 用拟合好的范围原地缩放样本输入到 [-1,1]
func (p *Pipeline) NormalizePatterns(set *dataProcess.PatternSet) error {
	if p.bounds == nil {
		return errors.Wrap(maths.ErrInvalidArgument, "需要先调用 CalcBoundsToNormalize")
	}
	if set.Len() > 0 && set.InputSize() != p.bounds.Size() {
		return errors.Wrapf(maths.ErrDimensionMismatch, "样本输入 %d, 归一化范围 %d", set.InputSize(), p.bounds.Size())
	}
	for i := 0; i < set.Len(); i++ {
		if err := p.bounds.apply(set.At(i).Input); err != nil {
			return err
		}
	}
	return nil
}

// Train 在已归一化的样本集上训练网络，返回本次执行的轮数
func (p *Pipeline) Train(ctx context.Context, set *dataProcess.PatternSet, opts training.RunOptions) (int, error) {
	if p.trainer == nil {
		return 0, errors.Wrap(maths.ErrInvalidArgument, "需要先调用 Configure")
	}
	return p.trainer.Run(ctx, set, opts)
}

// Recognize 投影、归一化、前向传播，再按判决规则给出身份
func (p *Pipeline) Recognize(image *maths.Vector[float64]) (Decision, error) {
	if p.net == nil || p.bounds == nil {
		return Decision{Index: -1}, errors.Wrap(maths.ErrInvalidArgument, "识别流程尚未训练")
	}
	features, err := p.model.Project(image)
	if err != nil {
		return Decision{Index: -1}, err
	}
	if err := p.bounds.apply(features); err != nil {
		return Decision{Index: -1}, err
	}
	_, outputs, err := p.net.Recall(features)
	if err != nil {
		return Decision{Index: -1}, err
	}

	d := Decision{Index: decide(p.opts.Rule, p.threshold, outputs), Outputs: outputs.Data()}
	if d.Index >= 0 {
		d.Identity = p.identities[d.Index]
		d.Known = true
	}
	return d, nil
}
