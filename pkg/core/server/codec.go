// 图像向量的编码工具函数
// 客户端可以直接发送 JSON 数组，也可以发送二进制向量格式的 Base64 字符串，便于传输大图像
package server

import (
	"bytes"
	"encoding/base64"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

// EncodeVector 将向量序列化为二进制格式后做 Base64 编码
func EncodeVector(v *maths.Vector[float64]) (string, error) {
	var buf bytes.Buffer
	if _, err := v.WriteTo(&buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeVector 将 Base64 字符串解码为向量，数据必须恰好是一个完整的向量
func DecodeVector(s string) (*maths.Vector[float64], error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "Base64 解码失败: %v", err)
	}
	var v maths.Vector[float64]
	n, err := v.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if int(n) != len(data) {
		return nil, errors.Wrapf(maths.ErrIO, "向量数据后有 %d 字节多余内容", len(data)-int(n))
	}
	return &v, nil
}

// imageInput 请求中的一张图像，两种形式二选一
type imageInput struct {
	Image     []float64 `json:"image,omitempty"`
	ImageData string    `json:"image_data,omitempty"`
}

func (in imageInput) vector() (*maths.Vector[float64], error) {
	switch {
	case len(in.Image) > 0 && in.ImageData != "":
		return nil, errors.Wrap(maths.ErrInvalidArgument, "image 和 image_data 只能提供一个")
	case len(in.Image) > 0:
		return maths.NewVectorFrom(in.Image), nil
	case in.ImageData != "":
		return DecodeVector(in.ImageData)
	default:
		return nil, errors.Wrap(maths.ErrInvalidArgument, "缺少 image 或 image_data")
	}
}
