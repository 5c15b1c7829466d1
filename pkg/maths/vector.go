package maths

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

/*
该文件包含通用数值向量的封装
单一泛型实现，float32 与 float64 共用同一份代码
*/

// Float 标量类型约束
type Float interface {
	~float32 | ~float64
}

// Vector 定长实数序列，拷贝均为深拷贝
type Vector[T Float] struct {
	data []T
}

// NewVector 创建长度为 n 的零向量
func NewVector[T Float](n int) *Vector[T] {
	if n < 0 {
		panic(errors.Wrapf(ErrInvalidArgument, "向量长度不能为负: %d", n))
	}
	return &Vector[T]{data: make([]T, n)}
}

// NewVectorFrom 用切片副本构建向量
func NewVectorFrom[T Float](values []T) *Vector[T] {
	data := make([]T, len(values))
	copy(data, values)
	return &Vector[T]{data: data}
}

func (v *Vector[T]) Len() int { return len(v.data) }

func (v *Vector[T]) At(i int) T { return v.data[i] }

func (v *Vector[T]) Set(i int, value T) { v.data[i] = value }

// Data 返回数据副本
func (v *Vector[T]) Data() []T {
	out := make([]T, len(v.data))
	copy(out, v.data)
	return out
}

// Raw 返回底层切片引用，修改会直接作用于向量
func (v *Vector[T]) Raw() []T { return v.data }

func (v *Vector[T]) Clone() *Vector[T] {
	return NewVectorFrom(v.data)
}

// CopyFrom 从同长度向量复制数据
func (v *Vector[T]) CopyFrom(src *Vector[T]) {
	v.mustMatch(src, "CopyFrom")
	copy(v.data, src.data)
}

// Resize 调整长度，保留重叠部分，新增位置补零
func (v *Vector[T]) Resize(n int) {
	if n < 0 {
		panic(errors.Wrapf(ErrInvalidArgument, "向量长度不能为负: %d", n))
	}
	if n == len(v.data) {
		return
	}
	data := make([]T, n)
	copy(data, v.data)
	v.data = data
}

func (v *Vector[T]) Zero() {
	for i := range v.data {
		v.data[i] = 0
	}
}

func (v *Vector[T]) Fill(value T) {
	for i := range v.data {
		v.data[i] = value
	}
}

// Add 返回 v+other
func (v *Vector[T]) Add(other *Vector[T]) *Vector[T] {
	v.mustMatch(other, "Add")
	out := NewVector[T](len(v.data))
	for i, x := range v.data {
		out.data[i] = x + other.data[i]
	}
	return out
}

// Sub 返回 v-other
func (v *Vector[T]) Sub(other *Vector[T]) *Vector[T] {
	v.mustMatch(other, "Sub")
	out := NewVector[T](len(v.data))
	for i, x := range v.data {
		out.data[i] = x - other.data[i]
	}
	return out
}

// Scale 返回 s*v
func (v *Vector[T]) Scale(s T) *Vector[T] {
	out := NewVector[T](len(v.data))
	for i, x := range v.data {
		out.data[i] = x * s
	}
	return out
}

// Div 返回 v/s，s 为零时 panic
func (v *Vector[T]) Div(s T) *Vector[T] {
	if s == 0 {
		panic(errors.Wrap(ErrInvalidArgument, "向量除以零"))
	}
	out := NewVector[T](len(v.data))
	for i, x := range v.data {
		out.data[i] = x / s
	}
	return out
}

// Hadamard 逐元素乘积
func (v *Vector[T]) Hadamard(other *Vector[T]) *Vector[T] {
	v.mustMatch(other, "Hadamard")
	out := NewVector[T](len(v.data))
	for i, x := range v.data {
		out.data[i] = x * other.data[i]
	}
	return out
}

// AddScaledInPlace v += s*other
func (v *Vector[T]) AddScaledInPlace(s T, other *Vector[T]) {
	v.mustMatch(other, "AddScaledInPlace")
	for i, x := range other.data {
		v.data[i] += s * x
	}
}

// Dot 点积
func (v *Vector[T]) Dot(other *Vector[T]) T {
	v.mustMatch(other, "Dot")
	var sum T
	for i, x := range v.data {
		sum += x * other.data[i]
	}
	return sum
}

func (v *Vector[T]) Sum() T {
	var sum T
	for _, x := range v.data {
		sum += x
	}
	return sum
}

// Mean 空向量返回 0
func (v *Vector[T]) Mean() T {
	if len(v.data) == 0 {
		return 0
	}
	return v.Sum() / T(len(v.data))
}

// Min 返回最小值及其位置（并列时取第一个），空向量返回位置 -1
func (v *Vector[T]) Min() (T, int) {
	if len(v.data) == 0 {
		return 0, -1
	}
	best, pos := v.data[0], 0
	for i, x := range v.data[1:] {
		if x < best {
			best, pos = x, i+1
		}
	}
	return best, pos
}

// Max 返回最大值及其位置（并列时取第一个），空向量返回位置 -1
func (v *Vector[T]) Max() (T, int) {
	if len(v.data) == 0 {
		return 0, -1
	}
	best, pos := v.data[0], 0
	for i, x := range v.data[1:] {
		if x > best {
			best, pos = x, i+1
		}
	}
	return best, pos
}

// ArgMax 最大分量下标
func (v *Vector[T]) ArgMax() int {
	_, pos := v.Max()
	return pos
}

// Equal 长度与每个分量完全相同
func (v *Vector[T]) Equal(other *Vector[T]) bool {
	if other == nil || len(v.data) != len(other.data) {
		return false
	}
	for i, x := range v.data {
		if x != other.data[i] && !(isNaN(x) && isNaN(other.data[i])) {
			return false
		}
	}
	return true
}

// String 调试输出，形如 (3)[ 1 2 3 ]
func (v *Vector[T]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%d)[", len(v.data))
	for _, x := range v.data {
		fmt.Fprintf(&sb, " %g", float64(x))
	}
	sb.WriteString(" ]")
	return sb.String()
}

func (v *Vector[T]) mustMatch(other *Vector[T], op string) {
	if len(v.data) != len(other.data) {
		dimensionPanic("%s: 向量长度 %d 与 %d 不一致", op, len(v.data), len(other.data))
	}
}

func isNaN[T Float](x T) bool {
	return math.IsNaN(float64(x))
}
