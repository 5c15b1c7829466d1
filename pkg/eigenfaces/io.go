package eigenfaces

import (
	"bufio"
	"io"
	"os"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

const (
	fileMagic   = "EIGF"
	fileVersion = 1
)

// WriteTo 固定顺序：文件头、特征值、平均脸、特征向量、特征脸
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	if m.eigenfaces == nil {
		return 0, errors.Wrap(maths.ErrInvalidArgument, "特征脸尚未计算，无法保存")
	}
	cw := &maths.CountingWriter{W: w}
	if err := maths.WriteHeader(cw, fileMagic, fileVersion); err != nil {
		return cw.N, err
	}
	for _, part := range []io.WriterTo{m.eigenvalues, m.meanFace, m.eigenvectors, m.eigenfaces} {
		if _, err := part.WriteTo(cw); err != nil {
			return cw.N, err
		}
	}
	return cw.N, nil
}

// ReadFrom 重建全部四个部分，K 取特征脸矩阵的列数
// 载入的模型不包含训练图像，只能用于投影
func (m *Model) ReadFrom(r io.Reader) (int64, error) {
	cr := &maths.CountingReader{R: r}
	if _, err := maths.ReadHeader(cr, fileMagic, fileVersion); err != nil {
		return cr.N, err
	}
	var (
		values  maths.Vector[float64]
		mean    maths.Vector[float64]
		vectors maths.Matrix[float64]
		faces   maths.Matrix[float64]
	)
	for _, part := range []io.ReaderFrom{&values, &mean, &vectors, &faces} {
		if _, err := part.ReadFrom(cr); err != nil {
			return cr.N, errors.WithMessage(err, "读取特征脸模型失败")
		}
	}

	count := values.Len()
	if vectors.Rows() != count || vectors.Cols() != count {
		return cr.N, errors.Wrapf(maths.ErrIO, "特征向量矩阵 %dx%d 与特征值个数 %d 不一致", vectors.Rows(), vectors.Cols(), count)
	}
	if faces.Rows() != mean.Len() || faces.Cols() < 1 || faces.Cols() > count {
		return cr.N, errors.Wrapf(maths.ErrIO, "特征脸矩阵 %dx%d 与平均脸长度 %d 不一致", faces.Rows(), faces.Cols(), mean.Len())
	}

	m.images = maths.NewMatrix[float64](0, 0)
	m.centered = nil
	m.eigenvalues = &values
	m.meanFace = &mean
	m.eigenvectors = &vectors
	m.eigenfaces = &faces
	return cr.N, nil
}

// Save 保存到文件
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "无法创建特征脸文件 %s", path)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := m.WriteTo(bw); err != nil {
		return errors.WithMessagef(err, "写入特征脸文件 %s 失败", path)
	}
	return bw.Flush()
}

// Load 从文件载入模型
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法打开特征脸文件 %s", path)
	}
	defer f.Close()

	m := NewModel()
	if _, err := m.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.WithMessagef(err, "载入特征脸文件 %s 失败", path)
	}
	return m, nil
}
