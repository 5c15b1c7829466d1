package maths

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

/*
该文件实现向量和矩阵的二进制序列化
向量: 8 字节长度 N + N 个标量
矩阵: 8 字节行数 + 8 字节列数 + 行优先的 rows*cols 个标量
全部使用小端序，标量宽度由类型参数决定（float32 为 4 字节，float64 为 8 字节）
*/

// maxElements 读取时允许的最大元素数，防止损坏的长度头导致巨量分配
const maxElements = 1 << 31

// readChunk 分块读取的元素数，内存随实际到达的数据增长
const readChunk = 1 << 16

var byteOrder = binary.LittleEndian

// readScalars 分块读取 n 个标量，截断的输入在读到末尾时报错
func readScalars[T Float](r io.Reader, n uint64) ([]T, error) {
	data := make([]T, 0, min(n, readChunk))
	chunk := make([]T, min(n, readChunk))
	for remaining := n; remaining > 0; {
		k := min(remaining, readChunk)
		if err := binary.Read(r, byteOrder, chunk[:k]); err != nil {
			return nil, err
		}
		data = append(data, chunk[:k]...)
		remaining -= k
	}
	return data, nil
}

func scalarSize[T Float]() int {
	var zero T
	return binary.Size(zero)
}

// WriteTo 实现 io.WriterTo
func (v *Vector[T]) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, byteOrder, uint64(len(v.data))); err != nil {
		return 0, err
	}
	if err := binary.Write(w, byteOrder, v.data); err != nil {
		return 8, err
	}
	return int64(8 + len(v.data)*scalarSize[T]()), nil
}

// ReadFrom 实现 io.ReaderFrom，读取后替换向量内容
func (v *Vector[T]) ReadFrom(r io.Reader) (int64, error) {
	var n uint64
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return 0, errors.Wrapf(ErrIO, "读取向量长度失败: %v", err)
	}
	if n > maxElements {
		return 8, errors.Wrapf(ErrIO, "向量长度 %d 不合法", n)
	}
	data, err := readScalars[T](r, n)
	if err != nil {
		return 8, errors.Wrapf(ErrIO, "读取向量数据失败: %v", err)
	}
	v.data = data
	return int64(8 + len(data)*scalarSize[T]()), nil
}

// WriteTo 实现 io.WriterTo
func (m *Matrix[T]) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, byteOrder, [2]uint64{uint64(m.rows), uint64(m.cols)}); err != nil {
		return 0, err
	}
	if err := binary.Write(w, byteOrder, m.data); err != nil {
		return 16, err
	}
	return int64(16 + len(m.data)*scalarSize[T]()), nil
}

// ReadFrom 实现 io.ReaderFrom，读取后替换矩阵内容
func (m *Matrix[T]) ReadFrom(r io.Reader) (int64, error) {
	var dims [2]uint64
	if err := binary.Read(r, byteOrder, &dims); err != nil {
		return 0, errors.Wrapf(ErrIO, "读取矩阵尺寸失败: %v", err)
	}
	rows, cols := dims[0], dims[1]
	if rows > maxElements || cols > maxElements || (cols != 0 && rows > maxElements/cols) {
		return 16, errors.Wrapf(ErrIO, "矩阵尺寸 %dx%d 不合法", rows, cols)
	}
	data, err := readScalars[T](r, rows*cols)
	if err != nil {
		return 16, errors.Wrapf(ErrIO, "读取矩阵数据失败: %v", err)
	}
	m.rows, m.cols, m.data = int(rows), int(cols), data
	return int64(16 + len(data)*scalarSize[T]()), nil
}

// Header 模型文件头：4 字节魔数 + 4 字节格式版本
type Header struct {
	Magic   [4]byte
	Version uint32
}

// WriteHeader 写入文件头
func WriteHeader(w io.Writer, magic string, version uint32) error {
	var h Header
	copy(h.Magic[:], magic)
	h.Version = version
	return binary.Write(w, byteOrder, h)
}

// ReadHeader 读取并校验文件头，返回文件中的版本号
func ReadHeader(r io.Reader, magic string, maxVersion uint32) (uint32, error) {
	var h Header
	if err := binary.Read(r, byteOrder, &h); err != nil {
		return 0, errors.Wrapf(ErrIO, "读取文件头失败: %v", err)
	}
	if string(h.Magic[:]) != magic {
		return 0, errors.Wrapf(ErrIO, "魔数不匹配: 期望 %q, 实际 %q", magic, string(h.Magic[:]))
	}
	if h.Version == 0 || h.Version > maxVersion {
		return 0, errors.Wrapf(ErrIO, "不支持的格式版本 %d", h.Version)
	}
	return h.Version, nil
}

// CountingWriter 统计写入字节数，便于组合格式实现 io.WriterTo
type CountingWriter struct {
	W io.Writer
	N int64
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	cw.N += int64(n)
	return n, err
}

// CountingReader 统计读取字节数，便于组合格式实现 io.ReaderFrom
type CountingReader struct {
	R io.Reader
	N int64
}

func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	cr.N += int64(n)
	return n, err
}
