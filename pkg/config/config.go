package config

import (
	"os"
	"time"

	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/network"
	"FaceRecDev/pkg/recognition"
	"FaceRecDev/pkg/training"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 服务和命令行工具共用的配置文件
type Config struct {
	Server      Server      `yaml:"server"`
	Eigenfaces  Eigenfaces  `yaml:"eigenfaces"`
	Network     Network     `yaml:"network"`
	Training    Training    `yaml:"training"`
	Recognition Recognition `yaml:"recognition"`
}

type Server struct {
	Port string `yaml:"port"`
	// 模型目录，启动时存在则载入，训练完成后写回
	ModelDir string `yaml:"model_dir"`
	// 已结束的训练任务保留时长
	JobTTL time.Duration `yaml:"job_ttl"`
	// 清理过期任务的间隔
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// 同时运行的训练任务上限
	MaxJobs int `yaml:"max_jobs"`
}

type Eigenfaces struct {
	// 固定特征脸个数，为 0 时按 Variance 选择
	Components int     `yaml:"components"`
	Variance   float64 `yaml:"variance"`
}

type Network struct {
	Hiddens          int                `yaml:"hiddens"`
	HiddenActivation network.Activation `yaml:"hidden_activation"`
	OutputActivation network.Activation `yaml:"output_activation"`
	InitMin          float64            `yaml:"init_min"`
	InitMax          float64            `yaml:"init_max"`
}

type Training struct {
	training.Config `yaml:",inline"`
	MaxEpochs       int     `yaml:"max_epochs"`
	TargetMSE       float64 `yaml:"target_mse"`
	Seed            uint64  `yaml:"seed"`
}

type Recognition struct {
	Rule      recognition.DecisionRule `yaml:"rule"`
	Threshold float64                  `yaml:"threshold"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            "8080",
			ModelDir:        "model",
			JobTTL:          30 * time.Minute,
			CleanupInterval: time.Minute,
			MaxJobs:         2,
		},
		Eigenfaces: Eigenfaces{Variance: 0.95},
		Network: Network{
			Hiddens:          16,
			HiddenActivation: network.Logistic,
			OutputActivation: network.Logistic,
			InitMin:          -1,
			InitMax:          1,
		},
		Training: Training{
			Config:    training.DefaultConfig(),
			MaxEpochs: 2000,
			TargetMSE: 0.001,
			Seed:      1,
		},
		Recognition: Recognition{Rule: recognition.DecisionArgMax, Threshold: 0.5},
	}
}

// Load 在默认配置上覆盖文件中出现的字段
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法读取配置文件 %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(maths.ErrInvalidArgument, "解析配置文件 %s 失败: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "配置文件 %s", path)
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return errors.Wrap(maths.ErrInvalidArgument, "server.port 不能为空")
	case c.Server.JobTTL <= 0 || c.Server.CleanupInterval <= 0:
		return errors.Wrap(maths.ErrInvalidArgument, "server.job_ttl 和 server.cleanup_interval 必须为正")
	case c.Server.MaxJobs < 1:
		return errors.Wrapf(maths.ErrInvalidArgument, "server.max_jobs %d 必须为正", c.Server.MaxJobs)
	case c.Eigenfaces.Components < 0:
		return errors.Wrapf(maths.ErrInvalidArgument, "eigenfaces.components %d 不能为负", c.Eigenfaces.Components)
	case c.Eigenfaces.Components == 0 && !(c.Eigenfaces.Variance > 0 && c.Eigenfaces.Variance <= 1):
		return errors.Wrapf(maths.ErrInvalidArgument, "eigenfaces.variance %v 超出 (0,1]", c.Eigenfaces.Variance)
	case c.Network.Hiddens < 1:
		return errors.Wrapf(maths.ErrInvalidArgument, "network.hiddens %d 必须为正", c.Network.Hiddens)
	case !(c.Network.InitMin < c.Network.InitMax):
		return errors.Wrap(maths.ErrInvalidArgument, "network.init_min 必须小于 network.init_max")
	case c.Training.MaxEpochs < 1:
		return errors.Wrapf(maths.ErrInvalidArgument, "training.max_epochs %d 必须为正", c.Training.MaxEpochs)
	case c.Training.TargetMSE < 0:
		return errors.Wrapf(maths.ErrInvalidArgument, "training.target_mse %v 不能为负", c.Training.TargetMSE)
	}
	return c.Training.Config.Validate()
}

// PipelineOptions 识别流程参数
func (c *Config) PipelineOptions() recognition.Options {
	return recognition.Options{
		HiddenActivation: c.Network.HiddenActivation,
		OutputActivation: c.Network.OutputActivation,
		InitMin:          c.Network.InitMin,
		InitMax:          c.Network.InitMax,
		Rule:             c.Recognition.Rule,
		Training:         c.Training.Config,
	}
}

// BuildOptions 一次性构建识别流程的参数
func (c *Config) BuildOptions() recognition.BuildOptions {
	return recognition.BuildOptions{
		Options:    c.PipelineOptions(),
		Components: c.Eigenfaces.Components,
		Variance:   c.Eigenfaces.Variance,
		Hiddens:    c.Network.Hiddens,
		Threshold:  c.Recognition.Threshold,
		Seed:       c.Training.Seed,
		Run: training.RunOptions{
			MaxEpochs: c.Training.MaxEpochs,
			TargetMSE: c.Training.TargetMSE,
		},
	}
}
