package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FaceRecDev/pkg/config"
	"FaceRecDev/pkg/core/server"
	"FaceRecDev/pkg/recognition"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件，为空时使用默认配置")
	port := flag.String("port", "", "监听端口，覆盖配置")
	modelDir := flag.String("model", "", "模型目录，覆盖配置")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Error("加载配置失败", "err", err)
			os.Exit(1)
		}
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *modelDir != "" {
		cfg.Server.ModelDir = *modelDir
	}

	// 模型目录中已有模型时预先载入
	var pipeline *recognition.Pipeline
	if cfg.Server.ModelDir != "" && recognition.HasBundle(cfg.Server.ModelDir) {
		opts := cfg.PipelineOptions()
		opts.Logger = logger
		var err error
		if pipeline, err = recognition.LoadDir(cfg.Server.ModelDir, opts); err != nil {
			logger.Error("载入模型失败", "dir", cfg.Server.ModelDir, "err", err)
			os.Exit(1)
		}
		logger.Info("模型已载入", "dir", cfg.Server.ModelDir, "identities", len(pipeline.Identities()))
	}

	hs := server.NewHTTPServer(cfg, pipeline, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- hs.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("服务异常退出", "err", err)
			os.Exit(1)
		}
		return
	case sig := <-quit:
		logger.Info("收到退出信号，正在关闭", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Stop(ctx); err != nil {
		logger.Error("关闭服务失败", "err", err)
		os.Exit(1)
	}
}
