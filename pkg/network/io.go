package network

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

const (
	fileMagic   = "MLP "
	fileVersion = 1
)

// WriteTo 文件头、隐藏层/输出层激活函数，随后按 W1, W2, B1, B2 的顺序写入
func (m *Mlp) WriteTo(w io.Writer) (int64, error) {
	cw := &maths.CountingWriter{W: w}
	if err := maths.WriteHeader(cw, fileMagic, fileVersion); err != nil {
		return cw.N, err
	}
	if err := binary.Write(cw, binary.LittleEndian, [2]uint32{uint32(m.hidden), uint32(m.output)}); err != nil {
		return cw.N, err
	}
	for _, part := range []io.WriterTo{m.w1, m.w2, m.b1, m.b2} {
		if _, err := part.WriteTo(cw); err != nil {
			return cw.N, err
		}
	}
	return cw.N, nil
}

// ReadFrom 读取并校验网络结构，成功后替换全部参数
func (m *Mlp) ReadFrom(r io.Reader) (int64, error) {
	cr := &maths.CountingReader{R: r}
	if _, err := maths.ReadHeader(cr, fileMagic, fileVersion); err != nil {
		return cr.N, err
	}
	var acts [2]uint32
	if err := binary.Read(cr, binary.LittleEndian, &acts); err != nil {
		return cr.N, errors.Wrapf(maths.ErrIO, "读取激活函数失败: %v", err)
	}
	hidden, output := Activation(acts[0]), Activation(acts[1])
	if !hidden.valid() || !output.valid() {
		return cr.N, errors.Wrapf(maths.ErrIO, "激活函数编号 %d/%d 不合法", acts[0], acts[1])
	}

	var (
		w1, w2 maths.Matrix[float64]
		b1, b2 maths.Vector[float64]
	)
	for _, part := range []io.ReaderFrom{&w1, &w2, &b1, &b2} {
		if _, err := part.ReadFrom(cr); err != nil {
			return cr.N, errors.WithMessage(err, "读取网络参数失败")
		}
	}
	h, n, o := w1.Rows(), w1.Cols(), w2.Rows()
	if h < 1 || n < 1 || o < 1 || w2.Cols() != h || b1.Len() != h || b2.Len() != o {
		return cr.N, errors.Wrapf(maths.ErrIO, "网络参数尺寸不一致: W1 %dx%d, W2 %dx%d, B1 %d, B2 %d",
			h, n, o, w2.Cols(), b1.Len(), b2.Len())
	}

	m.w1, m.w2, m.b1, m.b2 = &w1, &w2, &b1, &b2
	m.hidden, m.output = hidden, output
	return cr.N, nil
}

// Save 保存到文件
func (m *Mlp) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "无法创建网络文件 %s", path)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := m.WriteTo(bw); err != nil {
		return errors.WithMessagef(err, "写入网络文件 %s 失败", path)
	}
	return bw.Flush()
}

// Load 从文件载入网络
func Load(path string) (*Mlp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法打开网络文件 %s", path)
	}
	defer f.Close()

	m := &Mlp{}
	if _, err := m.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.WithMessagef(err, "载入网络文件 %s 失败", path)
	}
	return m, nil
}
