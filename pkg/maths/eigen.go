package maths

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EigSym 对称矩阵特征分解，委托给 gonum 的 LAPACK 实现
// 返回 R 个特征值和 R×R 特征向量矩阵（第 i 列对应第 i 个特征值），不做排序
// 只读取上三角部分，调用方负责保证对称性
func (m *Matrix[T]) EigSym() (*Vector[T], *Matrix[T], error) {
	if !m.IsSquare() || m.rows == 0 {
		return nil, nil, errors.Wrapf(ErrInvalidArgument, "EigSym: 需要非空方阵, 实际 %dx%d", m.rows, m.cols)
	}
	n := m.rows
	sym := mat.NewSymDense(n, nil)
	for r := 0; r < n; r++ {
		for c := r; c < n; c++ {
			x := float64(m.data[r*n+c])
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, nil, errors.Wrapf(ErrConvergence, "EigSym: (%d,%d) 处为非有限值 %v", r, c, x)
			}
			sym.SetSym(r, c, x)
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, nil, errors.Wrapf(ErrConvergence, "EigSym: %dx%d 矩阵分解失败", n, n)
	}
	values := es.Values(nil)
	for _, x := range values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, nil, errors.Wrapf(ErrConvergence, "EigSym: %dx%d 矩阵含非有限值", n, n)
		}
	}
	var q mat.Dense
	es.VectorsTo(&q)

	eigenvalues := NewVector[T](n)
	for i, x := range values {
		eigenvalues.data[i] = T(x)
	}
	eigenvectors := NewMatrix[T](n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			eigenvectors.data[r*n+c] = T(q.At(r, c))
		}
	}
	return eigenvalues, eigenvectors, nil
}
