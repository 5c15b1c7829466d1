package recognition

import (
	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// Bounds 每个输入维度拟合出的取值范围
// 只拟合一次，之后所有样本和待识别图像都使用同一个范围
type Bounds struct {
	Min *maths.Vector[float64]
	Max *maths.Vector[float64]
}

// fitBounds 在参考样本集上统计每一维的最小值和最大值
func fitBounds(set *dataProcess.PatternSet) (*Bounds, error) {
	if set == nil || set.Len() == 0 {
		return nil, errors.Wrap(maths.ErrEmptySet, "无法在空样本集上拟合归一化范围")
	}
	lo := set.At(0).Input.Clone()
	hi := set.At(0).Input.Clone()
	for i := 1; i < set.Len(); i++ {
		for j, x := range set.At(i).Input.Raw() {
			if x < lo.At(j) {
				lo.Set(j, x)
			}
			if x > hi.At(j) {
				hi.Set(j, x)
			}
		}
	}
	return &Bounds{Min: lo, Max: hi}, nil
}

// Size 维度数
func (b *Bounds) Size() int { return b.Min.Len() }

// apply 原地把 v 线性映射到 [-1,1]，常数维度映射为 0
// 超出拟合范围的值按同一线性关系映射，不做截断
func (b *Bounds) apply(v *maths.Vector[float64]) error {
	if v.Len() != b.Size() {
		return errors.Wrapf(maths.ErrDimensionMismatch, "向量长度 %d, 归一化范围 %d", v.Len(), b.Size())
	}
	data := v.Raw()
	for j := range data {
		lo, hi := b.Min.At(j), b.Max.At(j)
		if hi == lo {
			data[j] = 0
			continue
		}
		data[j] = 2*(data[j]-lo)/(hi-lo) - 1
	}
	return nil
}

func (b *Bounds) clone() *Bounds {
	return &Bounds{Min: b.Min.Clone(), Max: b.Max.Clone()}
}
