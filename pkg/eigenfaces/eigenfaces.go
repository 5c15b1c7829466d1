package eigenfaces

import (
	"log/slog"
	"math"
	"runtime"
	"time"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

/*
该文件实现基于 PCA 的特征脸提取
像素数 N 远大于样本数 M 时，不分解 N×N 协方差矩阵，而是分解 M×M 的 Xcᵗ·Xc，
再用 Xc 把它的特征向量映射回像素空间
*/

// Model 特征脸模型
type Model struct {
	// 训练图像，每列一张，N×M
	images *maths.Matrix[float64]
	// 零均值化后的数据 Xc，N×M
	centered *maths.Matrix[float64]

	meanFace     *maths.Vector[float64] // N
	eigenvalues  *maths.Vector[float64] // M，按绝对值降序
	eigenvectors *maths.Matrix[float64] // M×M，第 i 列对应第 i 个特征值
	eigenfaces   *maths.Matrix[float64] // N×K

	// Logger 为空时不输出日志
	Logger *slog.Logger
}

// NewModel 创建空模型
func NewModel() *Model {
	return &Model{images: maths.NewMatrix[float64](0, 0)}
}

func (m *Model) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

// AddImage 把图像追加为数据矩阵的一列，所有图像长度必须相同
// 追加后之前计算的特征值和特征脸失效
func (m *Model) AddImage(image *maths.Vector[float64]) error {
	if image == nil || image.Len() == 0 {
		return errors.Wrap(maths.ErrInvalidArgument, "图像为空")
	}
	if m.images.Cols() > 0 && image.Len() != m.images.Rows() {
		return errors.Wrapf(maths.ErrDimensionMismatch, "图像长度 %d, 期望 %d", image.Len(), m.images.Rows())
	}
	m.images.AppendCol(image)
	m.centered, m.eigenvalues, m.eigenvectors, m.eigenfaces = nil, nil, nil, nil
	return nil
}

// NumImages 已加入的图像数 M
func (m *Model) NumImages() int { return m.images.Cols() }

// ImageSize 图像长度 N，载入的模型取自平均脸
func (m *Model) ImageSize() int {
	if m.meanFace != nil {
		return m.meanFace.Len()
	}
	return m.images.Rows()
}

// NumComponents 当前特征脸个数 K，尚未计算时为 0
func (m *Model) NumComponents() int {
	if m.eigenfaces == nil {
		return 0
	}
	return m.eigenfaces.Cols()
}

// CalculateEigenvalues 计算平均脸、零均值数据以及 Xcᵗ·Xc 的特征分解
// 特征对按特征值绝对值降序排列（稳定，并列保持原顺序）
// 失败时不修改已有状态
func (m *Model) CalculateEigenvalues() error {
	count := m.images.Cols()
	if count == 0 {
		return errors.Wrap(maths.ErrInvalidArgument, "没有训练图像")
	}
	start := time.Now()

	mean := m.images.RowMean()
	centered := m.images.SubColVector(mean)
	gram := centered.Transpose().Mul(centered)

	values, vectors, err := gram.EigSym()
	if err != nil {
		return errors.WithMessagef(err, "%dx%d 协方差替代矩阵分解失败", count, count)
	}
	sortEigenpairs(values, vectors)

	m.meanFace = mean
	m.centered = centered
	m.eigenvalues = values
	m.eigenvectors = vectors
	m.eigenfaces = nil

	m.logger().Info("特征值计算完成",
		"images", count, "pixels", mean.Len(), "elapsed", time.Since(start))
	return nil
}

// sortEigenpairs 冒泡排序，相邻交换保证稳定
func sortEigenpairs(values *maths.Vector[float64], vectors *maths.Matrix[float64]) {
	n := values.Len()
	for pass := 0; pass < n-1; pass++ {
		swapped := false
		for i := 0; i < n-1-pass; i++ {
			if math.Abs(values.At(i)) < math.Abs(values.At(i+1)) {
				a, b := values.At(i), values.At(i+1)
				values.Set(i, b)
				values.Set(i+1, a)
				colA, colB := vectors.Col(i), vectors.Col(i+1)
				vectors.SetCol(i, colB)
				vectors.SetCol(i+1, colA)
				swapped = true
			}
		}
		if !swapped {
			return
		}
	}
}

// CalculateEigenfaces 用前 K 个特征对构建特征脸，可用不同的 K 重复调用
// 第 i 个特征脸 = Σ_j eigenvector_i(j) · Xc 的第 j 列
func (m *Model) CalculateEigenfaces(k int) error {
	if m.eigenvalues == nil {
		return errors.Wrap(maths.ErrInvalidArgument, "需要先成功调用 CalculateEigenvalues")
	}
	if m.centered == nil {
		return errors.Wrap(maths.ErrInvalidArgument, "载入的模型不含训练图像，无法重新计算特征脸")
	}
	count := m.eigenvalues.Len()
	if k < 1 || k > count {
		return errors.Wrapf(maths.ErrInvalidArgument, "特征脸个数 %d 超出范围 [1,%d]", k, count)
	}

	faces := maths.NewMatrix[float64](m.centered.Rows(), k)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < k; i++ {
		g.Go(func() error {
			// 每个 goroutine 只写自己的那一列
			faces.SetCol(i, m.centered.MulVec(m.eigenvectors.Col(i)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.eigenfaces = faces

	m.logger().Info("特征脸计算完成", "components", k)
	return nil
}

// NumComponentsFor 返回累计特征值占比达到 variance 所需的最少特征脸个数
// variance 为 1 时需要全部 M 个分量；永远达不到时返回 M
func (m *Model) NumComponentsFor(variance float64) (int, error) {
	if m.eigenvalues == nil {
		return 0, errors.Wrap(maths.ErrInvalidArgument, "需要先成功调用 CalculateEigenvalues")
	}
	if !(variance > 0 && variance <= 1) {
		return 0, errors.Wrapf(maths.ErrInvalidArgument, "方差占比 %v 超出 (0,1]", variance)
	}
	values := m.eigenvalues.Raw()
	count := len(values)
	if variance == 1 {
		return count, nil
	}
	cumulative := floats.CumSum(make([]float64, count), values)
	total := cumulative[count-1]
	if total <= 0 {
		return count, nil
	}
	for k, sum := range cumulative {
		if sum/total >= variance {
			return k + 1, nil
		}
	}
	return count, nil
}

// Project 把图像投影到特征空间：对每个特征脸 k 计算 dot(eigenface_k, image-meanFace)
// 无副作用，结果只依赖图像和当前特征脸
func (m *Model) Project(image *maths.Vector[float64]) (*maths.Vector[float64], error) {
	if m.eigenfaces == nil {
		return nil, errors.Wrap(maths.ErrInvalidArgument, "特征脸尚未计算")
	}
	if image == nil || image.Len() != m.meanFace.Len() {
		size := 0
		if image != nil {
			size = image.Len()
		}
		return nil, errors.Wrapf(maths.ErrDimensionMismatch, "图像长度 %d, 期望 %d", size, m.meanFace.Len())
	}
	return m.eigenfaces.MulTransVec(image.Sub(m.meanFace)), nil
}

// Reconstruct 由特征空间坐标还原图像：meanFace + Σ features_k · eigenface_k / λ_k
// 特征脸未归一化，其模长的平方等于对应特征值，因此按 λ_k 缩放；λ_k 接近零的分量跳过
func (m *Model) Reconstruct(features *maths.Vector[float64]) (*maths.Vector[float64], error) {
	if m.eigenfaces == nil {
		return nil, errors.Wrap(maths.ErrInvalidArgument, "特征脸尚未计算")
	}
	k := m.eigenfaces.Cols()
	if features == nil || features.Len() != k {
		return nil, errors.Wrapf(maths.ErrDimensionMismatch, "特征长度与特征脸个数 %d 不一致", k)
	}
	largest := math.Abs(m.eigenvalues.At(0))
	scaled := maths.NewVector[float64](k)
	for i := 0; i < k; i++ {
		lambda := m.eigenvalues.At(i)
		if math.Abs(lambda) <= 1e-12*largest {
			continue
		}
		scaled.Set(i, features.At(i)/lambda)
	}
	return m.eigenfaces.MulVec(scaled).Add(m.meanFace), nil
}

// MeanFace 平均脸副本，尚未计算时为 nil
func (m *Model) MeanFace() *maths.Vector[float64] { return cloneVec(m.meanFace) }

// Eigenvalues 排序后的特征值副本
func (m *Model) Eigenvalues() *maths.Vector[float64] { return cloneVec(m.eigenvalues) }

// Eigenvectors 排序后的特征向量副本（按列）
func (m *Model) Eigenvectors() *maths.Matrix[float64] { return cloneMat(m.eigenvectors) }

// Eigenfaces N×K 特征脸矩阵副本
func (m *Model) Eigenfaces() *maths.Matrix[float64] { return cloneMat(m.eigenfaces) }

func cloneVec(v *maths.Vector[float64]) *maths.Vector[float64] {
	if v == nil {
		return nil
	}
	return v.Clone()
}

func cloneMat(a *maths.Matrix[float64]) *maths.Matrix[float64] {
	if a == nil {
		return nil
	}
	return a.Clone()
}
