package recognition

import (
	"os"
	"path/filepath"

	"FaceRecDev/pkg/eigenfaces"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/network"
	"FaceRecDev/pkg/training"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	eigenfacesFile = "eigenfaces.bin"
	networkFile    = "mlp.bin"
	metadataFile   = "pipeline.yaml"
	bundleVersion  = 1
)

// metadata pipeline.yaml 的内容
type metadata struct {
	Version    int             `yaml:"version"`
	Identities []string        `yaml:"identities"`
	Rule       DecisionRule    `yaml:"rule"`
	Threshold  float64         `yaml:"threshold"`
	BoundsMin  []float64       `yaml:"bounds_min,flow"`
	BoundsMax  []float64       `yaml:"bounds_max,flow"`
	InitMin    float64         `yaml:"init_min"`
	InitMax    float64         `yaml:"init_max"`
	Training   training.Config `yaml:"training"`
}

// HasBundle 目录中是否已有保存的识别流程
func HasBundle(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, metadataFile))
	return err == nil
}

// SaveDir 把特征脸模型、网络和元数据写入目录，目录不存在时创建
func (p *Pipeline) SaveDir(dir string) error {
	if p.net == nil || p.bounds == nil {
		return errors.Wrap(maths.ErrInvalidArgument, "识别流程尚未训练，无法保存")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "无法创建目录 %s", dir)
	}
	if err := p.model.Save(filepath.Join(dir, eigenfacesFile)); err != nil {
		return err
	}
	if err := p.net.Save(filepath.Join(dir, networkFile)); err != nil {
		return err
	}

	meta := metadata{
		Version:    bundleVersion,
		Identities: p.identities,
		Rule:       p.opts.Rule,
		Threshold:  p.threshold,
		BoundsMin:  p.bounds.Min.Data(),
		BoundsMax:  p.bounds.Max.Data(),
		InitMin:    p.opts.InitMin,
		InitMax:    p.opts.InitMax,
		Training:   p.opts.Training,
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return errors.Wrap(err, "序列化识别流程元数据失败")
	}
	path := filepath.Join(dir, metadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "写入 %s 失败", path)
	}
	p.logger().Info("识别流程已保存", "dir", dir)
	return nil
}

// LoadDir 读取 SaveDir 写出的目录，激活函数取自网络文件，Logger 取自 opts
func LoadDir(dir string, opts Options) (*Pipeline, error) {
	path := filepath.Join(dir, metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法读取 %s", path)
	}
	var meta metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(maths.ErrIO, "解析 %s 失败: %v", path, err)
	}
	if meta.Version != bundleVersion {
		return nil, errors.Wrapf(maths.ErrIO, "不支持的识别流程版本 %d", meta.Version)
	}

	model, err := eigenfaces.Load(filepath.Join(dir, eigenfacesFile))
	if err != nil {
		return nil, err
	}
	net, err := network.Load(filepath.Join(dir, networkFile))
	if err != nil {
		return nil, err
	}

	k := model.NumComponents()
	if net.Inputs() != k || net.Outputs() != len(meta.Identities) ||
		len(meta.BoundsMin) != k || len(meta.BoundsMax) != k {
		return nil, errors.Wrapf(maths.ErrIO, "%s 中的模型尺寸不一致: 特征脸 %d, 网络 %d→%d, 身份 %d, 归一化范围 %d/%d",
			dir, k, net.Inputs(), net.Outputs(), len(meta.Identities), len(meta.BoundsMin), len(meta.BoundsMax))
	}

	opts.HiddenActivation = net.HiddenActivation()
	opts.OutputActivation = net.OutputActivation()
	opts.Rule = meta.Rule
	opts.InitMin, opts.InitMax = meta.InitMin, meta.InitMax
	opts.Training = meta.Training
	p, err := New(model, meta.Identities, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s 中的元数据无效", path)
	}
	if err := p.setNetwork(net, meta.Threshold); err != nil {
		return nil, err
	}
	p.bounds = &Bounds{
		Min: maths.NewVectorFrom(meta.BoundsMin),
		Max: maths.NewVectorFrom(meta.BoundsMax),
	}
	return p, nil
}
