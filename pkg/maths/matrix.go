package maths

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

/*
该文件包含稠密实数矩阵的封装
内部按行优先存储，布局对外不可见
*/

// Matrix R×C 稠密矩阵
type Matrix[T Float] struct {
	rows, cols int
	data       []T
}

// NewMatrix 创建 rows×cols 零矩阵
func NewMatrix[T Float](rows, cols int) *Matrix[T] {
	if rows < 0 || cols < 0 {
		panic(errors.Wrapf(ErrInvalidArgument, "矩阵尺寸不能为负: %dx%d", rows, cols))
	}
	return &Matrix[T]{rows: rows, cols: cols, data: make([]T, rows*cols)}
}

// NewMatrixFrom 按行优先顺序从切片构建矩阵
func NewMatrixFrom[T Float](rows, cols int, values []T) *Matrix[T] {
	if len(values) != rows*cols {
		dimensionPanic("NewMatrixFrom: 需要 %d 个元素, 实际 %d", rows*cols, len(values))
	}
	m := NewMatrix[T](rows, cols)
	copy(m.data, values)
	return m
}

// Identity n×n 单位阵
func Identity[T Float](n int) *Matrix[T] {
	m := NewMatrix[T](n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

func (m *Matrix[T]) Rows() int { return m.rows }

func (m *Matrix[T]) Cols() int { return m.cols }

func (m *Matrix[T]) IsSquare() bool { return m.rows == m.cols }

// Raw 返回行优先的底层存储，不复制
func (m *Matrix[T]) Raw() []T { return m.data }

func (m *Matrix[T]) At(r, c int) T {
	m.checkIndex(r, c)
	return m.data[r*m.cols+c]
}

func (m *Matrix[T]) Set(r, c int, value T) {
	m.checkIndex(r, c)
	m.data[r*m.cols+c] = value
}

// Row 返回第 r 行的副本
func (m *Matrix[T]) Row(r int) *Vector[T] {
	m.checkIndex(r, 0)
	return NewVectorFrom(m.data[r*m.cols : (r+1)*m.cols])
}

// Col 返回第 c 列的副本
func (m *Matrix[T]) Col(c int) *Vector[T] {
	m.checkIndex(0, c)
	out := NewVector[T](m.rows)
	for r := 0; r < m.rows; r++ {
		out.data[r] = m.data[r*m.cols+c]
	}
	return out
}

func (m *Matrix[T]) SetRow(r int, v *Vector[T]) {
	if v.Len() != m.cols {
		dimensionPanic("SetRow: 行长度 %d 与列数 %d 不一致", v.Len(), m.cols)
	}
	m.checkIndex(r, 0)
	copy(m.data[r*m.cols:(r+1)*m.cols], v.data)
}

func (m *Matrix[T]) SetCol(c int, v *Vector[T]) {
	if v.Len() != m.rows {
		dimensionPanic("SetCol: 列长度 %d 与行数 %d 不一致", v.Len(), m.rows)
	}
	m.checkIndex(0, c)
	for r := 0; r < m.rows; r++ {
		m.data[r*m.cols+c] = v.data[r]
	}
}

// InsertRow 在第 r 行之前插入一行，r==Rows() 时追加
func (m *Matrix[T]) InsertRow(r int, v *Vector[T]) {
	if r < 0 || r > m.rows {
		panic(errors.Wrapf(ErrInvalidArgument, "InsertRow: 行号 %d 越界", r))
	}
	if m.rows == 0 && m.cols == 0 {
		m.cols = v.Len()
	}
	if v.Len() != m.cols {
		dimensionPanic("InsertRow: 行长度 %d 与列数 %d 不一致", v.Len(), m.cols)
	}
	data := make([]T, 0, len(m.data)+m.cols)
	data = append(data, m.data[:r*m.cols]...)
	data = append(data, v.data...)
	data = append(data, m.data[r*m.cols:]...)
	m.data = data
	m.rows++
}

// InsertCol 在第 c 列之前插入一列，c==Cols() 时追加
func (m *Matrix[T]) InsertCol(c int, v *Vector[T]) {
	if c < 0 || c > m.cols {
		panic(errors.Wrapf(ErrInvalidArgument, "InsertCol: 列号 %d 越界", c))
	}
	if m.rows == 0 && m.cols == 0 {
		m.rows = v.Len()
	}
	if v.Len() != m.rows {
		dimensionPanic("InsertCol: 列长度 %d 与行数 %d 不一致", v.Len(), m.rows)
	}
	cols := m.cols + 1
	data := make([]T, m.rows*cols)
	for r := 0; r < m.rows; r++ {
		src := m.data[r*m.cols : (r+1)*m.cols]
		dst := data[r*cols : (r+1)*cols]
		copy(dst[:c], src[:c])
		dst[c] = v.data[r]
		copy(dst[c+1:], src[c:])
	}
	m.data = data
	m.cols = cols
}

// AppendCol 追加一列
func (m *Matrix[T]) AppendCol(v *Vector[T]) {
	m.InsertCol(m.cols, v)
}

// Transpose 返回转置矩阵
func (m *Matrix[T]) Transpose() *Matrix[T] {
	out := NewMatrix[T](m.cols, m.rows)
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			out.data[c*m.rows+r] = m.data[r*m.cols+c]
		}
	}
	return out
}

// Mul 矩阵乘法 m·other
func (m *Matrix[T]) Mul(other *Matrix[T]) *Matrix[T] {
	if m.cols != other.rows {
		dimensionPanic("Mul: (%dx%d)·(%dx%d) 内维不一致", m.rows, m.cols, other.rows, other.cols)
	}
	out := NewMatrix[T](m.rows, other.cols)
	for r := 0; r < m.rows; r++ {
		row := out.data[r*other.cols : (r+1)*other.cols]
		for k := 0; k < m.cols; k++ {
			a := m.data[r*m.cols+k]
			if a == 0 {
				continue
			}
			src := other.data[k*other.cols : (k+1)*other.cols]
			for c, b := range src {
				row[c] += a * b
			}
		}
	}
	return out
}

// MulVec 矩阵向量乘法 m·v
func (m *Matrix[T]) MulVec(v *Vector[T]) *Vector[T] {
	if m.cols != v.Len() {
		dimensionPanic("MulVec: (%dx%d)·(%d) 内维不一致", m.rows, m.cols, v.Len())
	}
	out := NewVector[T](m.rows)
	for r := 0; r < m.rows; r++ {
		var sum T
		for c, x := range m.data[r*m.cols : (r+1)*m.cols] {
			sum += x * v.data[c]
		}
		out.data[r] = sum
	}
	return out
}

// MulTransVec 计算 mᵗ·v，不显式构造转置
func (m *Matrix[T]) MulTransVec(v *Vector[T]) *Vector[T] {
	if m.rows != v.Len() {
		dimensionPanic("MulTransVec: (%dx%d)ᵗ·(%d) 内维不一致", m.rows, m.cols, v.Len())
	}
	out := NewVector[T](m.cols)
	for r := 0; r < m.rows; r++ {
		a := v.data[r]
		for c, x := range m.data[r*m.cols : (r+1)*m.cols] {
			out.data[c] += a * x
		}
	}
	return out
}

func (m *Matrix[T]) Add(other *Matrix[T]) *Matrix[T] {
	m.mustMatch(other, "Add")
	out := m.Clone()
	for i, x := range other.data {
		out.data[i] += x
	}
	return out
}

func (m *Matrix[T]) Sub(other *Matrix[T]) *Matrix[T] {
	m.mustMatch(other, "Sub")
	out := m.Clone()
	for i, x := range other.data {
		out.data[i] -= x
	}
	return out
}

func (m *Matrix[T]) Scale(s T) *Matrix[T] {
	out := m.Clone()
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Div 返回 m/s，s 为零时 panic
func (m *Matrix[T]) Div(s T) *Matrix[T] {
	if s == 0 {
		panic(errors.Wrap(ErrInvalidArgument, "矩阵除以零"))
	}
	out := m.Clone()
	for i := range out.data {
		out.data[i] /= s
	}
	return out
}

// AddScaledInPlace m += s*other
func (m *Matrix[T]) AddScaledInPlace(s T, other *Matrix[T]) {
	m.mustMatch(other, "AddScaledInPlace")
	for i, x := range other.data {
		m.data[i] += s * x
	}
}

// AddOuterInPlace m += s * a⊗b，a 长度为行数，b 长度为列数
func (m *Matrix[T]) AddOuterInPlace(s T, a, b *Vector[T]) {
	if a.Len() != m.rows || b.Len() != m.cols {
		dimensionPanic("AddOuterInPlace: (%d)⊗(%d) 与 %dx%d 不一致", a.Len(), b.Len(), m.rows, m.cols)
	}
	for r := 0; r < m.rows; r++ {
		sa := s * a.data[r]
		row := m.data[r*m.cols : (r+1)*m.cols]
		for c, x := range b.data {
			row[c] += sa * x
		}
	}
}

// RowMean 每一行的均值（对列求平均），长度为行数
func (m *Matrix[T]) RowMean() *Vector[T] {
	out := NewVector[T](m.rows)
	if m.cols == 0 {
		return out
	}
	for r := 0; r < m.rows; r++ {
		var sum T
		for _, x := range m.data[r*m.cols : (r+1)*m.cols] {
			sum += x
		}
		out.data[r] = sum / T(m.cols)
	}
	return out
}

// ColMean 每一列的均值（对行求平均），长度为列数
func (m *Matrix[T]) ColMean() *Vector[T] {
	out := NewVector[T](m.cols)
	if m.rows == 0 {
		return out
	}
	for r := 0; r < m.rows; r++ {
		for c, x := range m.data[r*m.cols : (r+1)*m.cols] {
			out.data[c] += x
		}
	}
	for c := range out.data {
		out.data[c] /= T(m.rows)
	}
	return out
}

// SubColVector 每一列都减去 v，返回新矩阵
func (m *Matrix[T]) SubColVector(v *Vector[T]) *Matrix[T] {
	if v.Len() != m.rows {
		dimensionPanic("SubColVector: 向量长度 %d 与行数 %d 不一致", v.Len(), m.rows)
	}
	out := m.Clone()
	for r := 0; r < m.rows; r++ {
		row := out.data[r*m.cols : (r+1)*m.cols]
		for c := range row {
			row[c] -= v.data[r]
		}
	}
	return out
}

// Min 最小元素及其位置，空矩阵返回 (-1,-1)
func (m *Matrix[T]) Min() (T, int, int) {
	if len(m.data) == 0 {
		return 0, -1, -1
	}
	v := Vector[T]{data: m.data}
	best, pos := v.Min()
	return best, pos / m.cols, pos % m.cols
}

// Max 最大元素及其位置，空矩阵返回 (-1,-1)
func (m *Matrix[T]) Max() (T, int, int) {
	if len(m.data) == 0 {
		return 0, -1, -1
	}
	v := Vector[T]{data: m.data}
	best, pos := v.Max()
	return best, pos / m.cols, pos % m.cols
}

func (m *Matrix[T]) Zero() {
	for i := range m.data {
		m.data[i] = 0
	}
}

// Resize 调整尺寸，保留重叠区域，新增位置补零
func (m *Matrix[T]) Resize(rows, cols int) {
	if rows < 0 || cols < 0 {
		panic(errors.Wrapf(ErrInvalidArgument, "矩阵尺寸不能为负: %dx%d", rows, cols))
	}
	if rows == m.rows && cols == m.cols {
		return
	}
	data := make([]T, rows*cols)
	keepCols := min(cols, m.cols)
	for r := 0; r < min(rows, m.rows); r++ {
		copy(data[r*cols:r*cols+keepCols], m.data[r*m.cols:r*m.cols+keepCols])
	}
	m.rows, m.cols, m.data = rows, cols, data
}

func (m *Matrix[T]) Clone() *Matrix[T] {
	return NewMatrixFrom(m.rows, m.cols, m.data)
}

// CopyFrom 从同尺寸矩阵复制数据
func (m *Matrix[T]) CopyFrom(src *Matrix[T]) {
	m.mustMatch(src, "CopyFrom")
	copy(m.data, src.data)
}

// Equal 尺寸与元素完全相同
func (m *Matrix[T]) Equal(other *Matrix[T]) bool {
	if other == nil || m.rows != other.rows || m.cols != other.cols {
		return false
	}
	a, b := Vector[T]{data: m.data}, Vector[T]{data: other.data}
	return a.Equal(&b)
}

// String 调试输出，形如 (2x2)[ 1 2 ; 3 4 ]
func (m *Matrix[T]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%dx%d)[", m.rows, m.cols)
	for r := 0; r < m.rows; r++ {
		if r > 0 {
			sb.WriteString(" ;")
		}
		for _, x := range m.data[r*m.cols : (r+1)*m.cols] {
			fmt.Fprintf(&sb, " %g", float64(x))
		}
	}
	sb.WriteString(" ]")
	return sb.String()
}

func (m *Matrix[T]) checkIndex(r, c int) {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		panic(errors.Wrapf(ErrInvalidArgument, "下标 (%d,%d) 超出 %dx%d", r, c, m.rows, m.cols))
	}
}

func (m *Matrix[T]) mustMatch(other *Matrix[T], op string) {
	if m.rows != other.rows || m.cols != other.cols {
		dimensionPanic("%s: %dx%d 与 %dx%d 不一致", op, m.rows, m.cols, other.rows, other.cols)
	}
}
