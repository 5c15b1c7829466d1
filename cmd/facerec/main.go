package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"FaceRecDev/pkg/config"
	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/recognition"
	"FaceRecDev/pkg/training"

	"github.com/pkg/errors"
)

// facerec 离线训练和识别工具
//
//	facerec -images faces.csv -labels labels.csv -model model/
//	facerec -model model/ -recognize probe.csv
func main() {
	var (
		configPath = flag.String("config", "", "YAML 配置文件，为空时使用默认配置")
		imagesPath = flag.String("images", "", "训练图像文件（.csv 或 gzip 压缩的 IDX）")
		labelsPath = flag.String("labels", "", "训练标签文件，格式与图像文件一致")
		modelDir   = flag.String("model", "", "模型目录，覆盖配置中的 server.model_dir")
		probePath  = flag.String("recognize", "", "待识别图像的 CSV 文件，给出时只做识别")
		seed       = flag.Uint64("seed", 0, "随机种子，非 0 时覆盖配置")
		verbose    = flag.Bool("v", false, "输出调试日志")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Error("加载配置失败", "err", err)
			os.Exit(1)
		}
	}
	if *modelDir != "" {
		cfg.Server.ModelDir = *modelDir
	}
	if *seed != 0 {
		cfg.Training.Seed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *probePath != "" {
		err = recognize(cfg, *probePath, logger)
	} else {
		err = train(ctx, cfg, *imagesPath, *labelsPath, logger)
	}
	if err != nil {
		logger.Error("执行失败", "err", err)
		os.Exit(1)
	}
}

func loadGallery(imagesPath, labelsPath string) ([]dataProcess.Subject, error) {
	if strings.HasSuffix(imagesPath, ".gz") {
		return dataProcess.LoadGalleryIDX(imagesPath, labelsPath)
	}
	return dataProcess.LoadGalleryCSV(imagesPath, labelsPath)
}

func train(ctx context.Context, cfg *config.Config, imagesPath, labelsPath string, logger *slog.Logger) error {
	if imagesPath == "" || labelsPath == "" {
		return errors.New("训练需要同时给出 -images 和 -labels")
	}
	subjects, err := loadGallery(imagesPath, labelsPath)
	if err != nil {
		return err
	}
	total := 0
	for _, s := range subjects {
		total += len(s.Images)
	}
	logger.Info("图库已载入", "identities", len(subjects), "images", total)

	opts := cfg.BuildOptions()
	opts.Logger = logger
	opts.Run.Progress = func(r training.EpochReport) {
		if r.Epoch%100 == 0 {
			logger.Info("训练进度", "epoch", r.Epoch, "mse", r.MSE, "rate", r.LearningRate)
		}
	}
	p, err := recognition.Build(ctx, subjects, opts)
	if err != nil {
		return err
	}

	correct := 0
	for i, s := range subjects {
		for _, img := range s.Images {
			d, err := p.Recognize(img)
			if err != nil {
				return err
			}
			if d.Index == i {
				correct++
			}
		}
	}
	fmt.Printf("训练完成: %d 轮, 特征脸 %d 个, 训练集准确率 %.2f%%\n",
		p.Epochs(), p.Model().NumComponents(), 100*float64(correct)/float64(total))

	if cfg.Server.ModelDir == "" {
		return nil
	}
	if err := p.SaveDir(cfg.Server.ModelDir); err != nil {
		return err
	}
	fmt.Printf("模型已保存到 %s\n", cfg.Server.ModelDir)
	return nil
}

func recognize(cfg *config.Config, probePath string, logger *slog.Logger) error {
	opts := cfg.PipelineOptions()
	opts.Logger = logger
	p, err := recognition.LoadDir(cfg.Server.ModelDir, opts)
	if err != nil {
		return err
	}
	probes, err := dataProcess.LoadImagesCSV(probePath)
	if err != nil {
		return err
	}
	for i, img := range probes {
		d, err := p.Recognize(img)
		if err != nil {
			return errors.WithMessagef(err, "第 %d 张图像", i+1)
		}
		identity := d.Identity
		if !d.Known {
			identity = "unknown"
		}
		fmt.Printf("图像 %d: %s\n", i+1, identity)
	}
	return nil
}
