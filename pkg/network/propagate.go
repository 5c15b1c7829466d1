package network

import (
	"fmt"

	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

/*
该文件包含网络的前向传播和误差反向传播
此外还有预测、准确率计算等辅助函数
*/

// Recall 前向传播，返回隐藏层和输出层的激活值
func (m *Mlp) Recall(input *maths.Vector[float64]) (hidden, output *maths.Vector[float64], err error) {
	a, err := m.RecallSums(input)
	if err != nil {
		return nil, nil, err
	}
	return a.Hidden, a.Output, nil
}

// RecallSums 前向传播，同时保留加权和供反向传播使用
func (m *Mlp) RecallSums(input *maths.Vector[float64]) (*Activations, error) {
	if err := m.checkInput(input); err != nil {
		return nil, err
	}
	hidden0 := m.w1.MulVec(input).Add(m.b1)
	hidden := m.hidden.Apply(hidden0)
	output0 := m.w2.MulVec(hidden).Add(m.b2)
	output := m.output.Apply(output0)
	return &Activations{Hidden0: hidden0, Hidden: hidden, Output0: output0, Output: output}, nil
}

// Predict 返回输出最大的单元下标
func (m *Mlp) Predict(input *maths.Vector[float64]) (int, error) {
	_, output, err := m.Recall(input)
	if err != nil {
		return -1, err
	}
	return output.ArgMax(), nil
}

// Evaluate 分类准确率：预测类别与目标 one-hot 向量最大分量一致的比例
func (m *Mlp) Evaluate(set *dataProcess.PatternSet) (float64, error) {
	if set == nil || set.Len() == 0 {
		return 0, errors.Wrap(maths.ErrEmptySet, "无法在空样本集上评估")
	}
	correct := 0
	for i := 0; i < set.Len(); i++ {
		p := set.At(i)
		pred, err := m.Predict(p.Input)
		if err != nil {
			return 0, errors.WithMessagef(err, "样本 %d", i)
		}
		if pred == p.Output.ArgMax() {
			correct++
		}
	}
	return float64(correct) / float64(set.Len()), nil
}

// Gradients 保存一次更新的全部参数增量，结构与网络参数一一对应
type Gradients struct {
	W1 *maths.Matrix[float64]
	W2 *maths.Matrix[float64]
	B1 *maths.Vector[float64]
	B2 *maths.Vector[float64]
}

// NewGradients 创建与网络形状相同的零增量
func NewGradients(m *Mlp) *Gradients {
	return &Gradients{
		W1: maths.NewMatrix[float64](m.Hiddens(), m.Inputs()),
		W2: maths.NewMatrix[float64](m.Outputs(), m.Hiddens()),
		B1: maths.NewVector[float64](m.Hiddens()),
		B2: maths.NewVector[float64](m.Outputs()),
	}
}

// Zero 清零
func (g *Gradients) Zero() {
	g.W1.Zero()
	g.W2.Zero()
	g.B1.Zero()
	g.B2.Zero()
}

// AddScaled g += s*other
func (g *Gradients) AddScaled(s float64, other *Gradients) {
	g.W1.AddScaledInPlace(s, other.W1)
	g.W2.AddScaledInPlace(s, other.W2)
	g.B1.AddScaledInPlace(s, other.B1)
	g.B2.AddScaledInPlace(s, other.B2)
}

// CopyFrom 覆盖为 other 的内容
func (g *Gradients) CopyFrom(other *Gradients) {
	g.W1.CopyFrom(other.W1)
	g.W2.CopyFrom(other.W2)
	g.B1.CopyFrom(other.B1)
	g.B2.CopyFrom(other.B2)
}

func (g *Gradients) String() string {
	return fmt.Sprintf("W1: %v\nW2: %v\nB1: %v\nB2: %v", g.W1, g.W2, g.B1, g.B2)
}

// CalculateGradients 计算单个样本的参数增量（已乘学习率），不更新参数
// 输出误差 = (target - output) ⊙ df_out(output0, output)
// 隐藏误差 = (W2ᵗ·输出误差) ⊙ df_hidden(hidden0, hidden)
func (m *Mlp) CalculateGradients(p *dataProcess.Pattern, eta float64, grads *Gradients) error {
	if p.Output.Len() != m.Outputs() {
		return errors.Wrapf(maths.ErrDimensionMismatch, "目标长度 %d, 网络输出 %d", p.Output.Len(), m.Outputs())
	}
	a, err := m.RecallSums(p.Input)
	if err != nil {
		return err
	}

	outputErr := p.Output.Sub(a.Output).Hadamard(m.output.Derivative(a.Output0, a.Output))
	hiddenErr := m.w2.MulTransVec(outputErr).Hadamard(m.hidden.Derivative(a.Hidden0, a.Hidden))

	grads.Zero()
	grads.W2.AddOuterInPlace(eta, outputErr, a.Hidden)
	grads.B2.AddScaledInPlace(eta, outputErr)
	grads.W1.AddOuterInPlace(eta, hiddenErr, p.Input)
	grads.B1.AddScaledInPlace(eta, hiddenErr)
	return nil
}

// Apply 把增量加到网络参数上
func (m *Mlp) Apply(delta *Gradients) {
	m.w1.AddScaledInPlace(1, delta.W1)
	m.w2.AddScaledInPlace(1, delta.W2)
	m.b1.AddScaledInPlace(1, delta.B1)
	m.b2.AddScaledInPlace(1, delta.B2)
}
