package network

import (
	"math/rand/v2"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
该文件包含三层感知机（输入层、一个隐藏层、输出层）的定义和初始化方法
输入层不单独封装，数据直接送入隐藏层
*/

// Mlp 前馈网络
// 不变量: W1 为 H×N, W2 为 O×H, B1 长度 H, B2 长度 O，N/H/O 创建后固定
type Mlp struct {
	w1 *maths.Matrix[float64]
	w2 *maths.Matrix[float64]
	b1 *maths.Vector[float64]
	b2 *maths.Vector[float64]

	hidden Activation
	output Activation
}

// Activations 一次前向传播的中间结果
type Activations struct {
	Hidden0 *maths.Vector[float64] // W1·x + B1
	Hidden  *maths.Vector[float64]
	Output0 *maths.Vector[float64] // W2·hidden + B2
	Output  *maths.Vector[float64]
}

// NewMlp 创建网络，权重和偏置全部为零，需要调用 InitRandom 随机化
func NewMlp(inputs, hiddens, outputs int, hiddenAct, outputAct Activation) (*Mlp, error) {
	if inputs < 1 || hiddens < 1 || outputs < 1 {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "网络尺寸 %d-%d-%d 不合法", inputs, hiddens, outputs)
	}
	if !hiddenAct.valid() || !outputAct.valid() {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "激活函数 %v/%v 不合法", hiddenAct, outputAct)
	}
	return &Mlp{
		w1:     maths.NewMatrix[float64](hiddens, inputs),
		w2:     maths.NewMatrix[float64](outputs, hiddens),
		b1:     maths.NewVector[float64](hiddens),
		b2:     maths.NewVector[float64](outputs),
		hidden: hiddenAct,
		output: outputAct,
	}, nil
}

func (m *Mlp) Inputs() int  { return m.w1.Cols() }
func (m *Mlp) Hiddens() int { return m.w1.Rows() }
func (m *Mlp) Outputs() int { return m.w2.Rows() }

func (m *Mlp) HiddenActivation() Activation { return m.hidden }
func (m *Mlp) OutputActivation() Activation { return m.output }

// W1 隐藏层权重副本
func (m *Mlp) W1() *maths.Matrix[float64] { return m.w1.Clone() }

// W2 输出层权重副本
func (m *Mlp) W2() *maths.Matrix[float64] { return m.w2.Clone() }

// B1 隐藏层偏置副本
func (m *Mlp) B1() *maths.Vector[float64] { return m.b1.Clone() }

// B2 输出层偏置副本
func (m *Mlp) B2() *maths.Vector[float64] { return m.b2.Clone() }

// InitRandom 所有权重和偏置独立地从 [min,max) 均匀分布中抽样
func (m *Mlp) InitRandom(min, max float64, src rand.Source) error {
	if !(min < max) {
		return errors.Wrapf(maths.ErrInvalidArgument, "初始化区间 [%v,%v) 不合法", min, max)
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	dist := distuv.Uniform{Min: min, Max: max, Src: src}
	for _, data := range [][]float64{m.w1.Raw(), m.w2.Raw(), m.b1.Raw(), m.b2.Raw()} {
		for i := range data {
			data[i] = dist.Rand()
		}
	}
	return nil
}

// Clone 深拷贝
func (m *Mlp) Clone() *Mlp {
	return &Mlp{
		w1:     m.w1.Clone(),
		w2:     m.w2.Clone(),
		b1:     m.b1.Clone(),
		b2:     m.b2.Clone(),
		hidden: m.hidden,
		output: m.output,
	}
}

// CopyFrom 用 src 的参数覆盖当前网络，两者结构必须相同
func (m *Mlp) CopyFrom(src *Mlp) error {
	if src.Inputs() != m.Inputs() || src.Hiddens() != m.Hiddens() || src.Outputs() != m.Outputs() {
		return errors.Wrapf(maths.ErrDimensionMismatch, "网络结构 %d-%d-%d 与 %d-%d-%d 不一致",
			src.Inputs(), src.Hiddens(), src.Outputs(), m.Inputs(), m.Hiddens(), m.Outputs())
	}
	m.w1.CopyFrom(src.w1)
	m.w2.CopyFrom(src.w2)
	m.b1.CopyFrom(src.b1)
	m.b2.CopyFrom(src.b2)
	m.hidden, m.output = src.hidden, src.output
	return nil
}

func (m *Mlp) checkInput(input *maths.Vector[float64]) error {
	if input == nil || input.Len() != m.Inputs() {
		size := 0
		if input != nil {
			size = input.Len()
		}
		return errors.Wrapf(maths.ErrDimensionMismatch, "输入长度 %d, 网络输入 %d", size, m.Inputs())
	}
	return nil
}

// SetWeights 用给定的参数替换网络权重，尺寸必须与网络一致
func (m *Mlp) SetWeights(w1, w2 *maths.Matrix[float64], b1, b2 *maths.Vector[float64]) error {
	if w1.Rows() != m.Hiddens() || w1.Cols() != m.Inputs() ||
		w2.Rows() != m.Outputs() || w2.Cols() != m.Hiddens() ||
		b1.Len() != m.Hiddens() || b2.Len() != m.Outputs() {
		return errors.Wrap(maths.ErrDimensionMismatch, "权重尺寸与网络结构不一致")
	}
	m.w1.CopyFrom(w1)
	m.w2.CopyFrom(w2)
	m.b1.CopyFrom(b1)
	m.b2.CopyFrom(b2)
	return nil
}

// CalcSSE 样本集上的误差平方和
func (m *Mlp) CalcSSE(set *dataProcess.PatternSet) (float64, error) {
	if set == nil || set.Len() == 0 {
		return 0, errors.Wrap(maths.ErrEmptySet, "无法在空样本集上计算误差")
	}
	sse := 0.0
	for i := 0; i < set.Len(); i++ {
		p := set.At(i)
		_, output, err := m.Recall(p.Input)
		if err != nil {
			return 0, errors.WithMessagef(err, "样本 %d", i)
		}
		if p.Output.Len() != output.Len() {
			return 0, errors.Wrapf(maths.ErrDimensionMismatch, "样本 %d 输出长度 %d, 网络输出 %d", i, p.Output.Len(), output.Len())
		}
		diff := p.Output.Sub(output)
		sse += diff.Dot(diff)
	}
	return sse, nil
}

// CalcMSE = CalcSSE / (样本数 * 输出个数)
func (m *Mlp) CalcMSE(set *dataProcess.PatternSet) (float64, error) {
	sse, err := m.CalcSSE(set)
	if err != nil {
		return 0, err
	}
	return sse / float64(set.Len()*m.Outputs()), nil
}
