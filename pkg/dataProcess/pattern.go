package dataProcess

import (
	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// Pattern 一个带标签的训练样本
type Pattern struct {
	Input  *maths.Vector[float64]
	Output *maths.Vector[float64]
}

// NewPattern 用输入输出的副本创建样本
func NewPattern(input, output []float64) *Pattern {
	return &Pattern{
		Input:  maths.NewVectorFrom(input),
		Output: maths.NewVectorFrom(output),
	}
}

// OneHot 将类别下标编码为 one-hot 向量
func OneHot(label int, numClasses int) (*maths.Vector[float64], error) {
	if label < 0 || label >= numClasses {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "类别 %d 超出范围 [0,%d)", label, numClasses)
	}
	oneHot := maths.NewVector[float64](numClasses)
	oneHot.Set(label, 1.0)
	return oneHot, nil
}

// Clone 深拷贝
func (p *Pattern) Clone() *Pattern {
	return &Pattern{Input: p.Input.Clone(), Output: p.Output.Clone()}
}
