package dataProcess

import (
	"compress/gzip"
	"encoding/binary"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"FaceRecDev/pkg/maths"

	"github.com/pkg/errors"
)

/*
该文件实现人脸图库的加载
图库由外部的采集/裁剪流程产生，每张照片已经是定长的灰度向量
*/

// Subject 一个身份及其全部照片
type Subject struct {
	Label  string
	Images []*maths.Vector[float64]
}

// GroupSubjects 按标签首次出现的顺序把图像归组
func GroupSubjects(images [][]float64, labels []string) ([]Subject, error) {
	if len(images) != len(labels) {
		return nil, errors.Wrapf(maths.ErrDimensionMismatch, "图像数 %d 与标签数 %d 不一致", len(images), len(labels))
	}
	var subjects []Subject
	index := make(map[string]int)
	size := -1
	for i, img := range images {
		if size < 0 {
			size = len(img)
		}
		if len(img) != size {
			return nil, errors.Wrapf(maths.ErrDimensionMismatch, "第 %d 张图像长度 %d, 期望 %d", i, len(img), size)
		}
		k, ok := index[labels[i]]
		if !ok {
			k = len(subjects)
			index[labels[i]] = k
			subjects = append(subjects, Subject{Label: labels[i]})
		}
		subjects[k].Images = append(subjects[k].Images, maths.NewVectorFrom(img))
	}
	return subjects, nil
}

// LoadGalleryCSV 载入 CSV 图库：图像文件每行一张归一化后的照片，标签文件每行第一列是身份
func LoadGalleryCSV(imagesPath, labelsPath string) ([]Subject, error) {
	images, err := loadImagesCSV(imagesPath)
	if err != nil {
		return nil, errors.WithMessage(err, "载入图像数据失败")
	}
	labels, err := loadLabelsCSV(labelsPath)
	if err != nil {
		return nil, errors.WithMessage(err, "载入标签数据失败")
	}
	return GroupSubjects(images, labels)
}

// LoadImagesCSV 载入 CSV 格式的图像数据
func LoadImagesCSV(path string) ([]*maths.Vector[float64], error) {
	rows, err := loadImagesCSV(path)
	if err != nil {
		return nil, err
	}
	out := make([]*maths.Vector[float64], len(rows))
	for i, row := range rows {
		out[i] = maths.NewVectorFrom(row)
	}
	return out, nil
}

func loadImagesCSV(path string) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "图像文件不存在: %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "解析 %s 失败: %v", path, err)
	}

	images := make([][]float64, len(records))
	for i, record := range records {
		images[i] = make([]float64, len(record))
		for j, val := range record {
			images[i][j], err = strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, errors.Wrapf(maths.ErrIO, "%s 第 %d 行第 %d 列: %v", path, i+1, j+1, err)
			}
		}
	}
	return images, nil
}

func loadLabelsCSV(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "标签文件不存在: %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "解析 %s 失败: %v", path, err)
	}

	labels := make([]string, len(records))
	for i, record := range records {
		if len(record) == 0 || record[0] == "" {
			return nil, errors.Wrapf(maths.ErrIO, "%s 第 %d 行缺少标签", path, i+1)
		}
		labels[i] = record[0]
	}
	return labels, nil
}

// LoadGalleryIDX 载入 gzip 压缩的 IDX 图库，像素值缩放到 [0,1]
func LoadGalleryIDX(imagesPath, labelsPath string) ([]Subject, error) {
	raw, err := LoadImagesIDX(imagesPath)
	if err != nil {
		return nil, errors.WithMessage(err, "加载图像数据失败")
	}
	rawLabels, err := LoadLabelsIDX(labelsPath)
	if err != nil {
		return nil, errors.WithMessage(err, "加载标签数据失败")
	}

	images := make([][]float64, len(raw))
	for i, img := range raw {
		images[i] = make([]float64, len(img))
		for j, px := range img {
			images[i][j] = float64(px) / 255.0
		}
	}
	labels := make([]string, len(rawLabels))
	for i, l := range rawLabels {
		labels[i] = strconv.Itoa(int(l))
	}
	return GroupSubjects(images, labels)
}

// maxIDXPixels 单张 IDX 图像允许的最大像素数
const maxIDXPixels = 1 << 24

// LoadImagesIDX 读取 IDX3 图像文件（魔数 2051）
func LoadImagesIDX(filename string) ([][]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "无法打开图像文件")
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "无法解压缩文件: %v", err)
	}
	defer reader.Close()

	var header [4]int32
	if err := binary.Read(reader, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "读取 IDX 头失败: %v", err)
	}
	magicNumber, numImages, numRows, numCols := header[0], header[1], header[2], header[3]
	if magicNumber != 2051 {
		return nil, errors.Wrap(maths.ErrIO, "文件格式不正确（魔数不匹配）")
	}
	if numImages < 0 || numRows <= 0 || numCols <= 0 {
		return nil, errors.Wrapf(maths.ErrIO, "IDX 尺寸不合法: %d×%dx%d", numImages, numRows, numCols)
	}

	pixels := int64(numRows) * int64(numCols)
	if pixels > maxIDXPixels {
		return nil, errors.Wrapf(maths.ErrIO, "IDX 图像尺寸 %dx%d 过大", numRows, numCols)
	}

	// 按实际读到的图像增长，不按头部声明的数量预分配
	images := make([][]byte, 0, min(int(numImages), 1024))
	for i := 0; i < int(numImages); i++ {
		img := make([]byte, pixels)
		if _, err := io.ReadFull(reader, img); err != nil {
			return nil, errors.Wrapf(maths.ErrIO, "读取第 %d 张图像失败: %v", i, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// LoadLabelsIDX 读取 IDX1 标签文件（魔数 2049）
func LoadLabelsIDX(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "无法打开标签文件")
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "无法解压缩文件: %v", err)
	}
	defer reader.Close()

	var magicNumber, numItems int32
	if err := binary.Read(reader, binary.BigEndian, &magicNumber); err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "读取魔数失败: %v", err)
	}
	if magicNumber != 2049 {
		return nil, errors.Wrap(maths.ErrIO, "文件格式不正确（魔数不匹配）")
	}
	if err := binary.Read(reader, binary.BigEndian, &numItems); err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "读取标签数量失败: %v", err)
	}
	if numItems < 0 {
		return nil, errors.Wrapf(maths.ErrIO, "标签数量不合法: %d", numItems)
	}

	labels, err := io.ReadAll(io.LimitReader(reader, int64(numItems)))
	if err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "读取标签数据失败: %v", err)
	}
	if len(labels) != int(numItems) {
		return nil, errors.Wrapf(maths.ErrIO, "标签数据不完整: 期望 %d, 实际 %d", numItems, len(labels))
	}
	return labels, nil
}
