package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"FaceRecDev/pkg/config"
	"FaceRecDev/pkg/core/jobs"
	"FaceRecDev/pkg/recognition"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HTTPServer 识别服务
type HTTPServer struct {
	//Gin框架的路由引擎
	Router *gin.Engine
	Config *config.Config

	jobs     *jobs.Manager
	upgrader websocket.Upgrader
	logger   *slog.Logger
	server   *http.Server

	// 当前对外服务的识别流程，训练任务成功后整体替换
	mu       sync.RWMutex
	pipeline *recognition.Pipeline
}

// NewHTTPServer 创建服务并注册路由，pipeline 可以为空
func NewHTTPServer(cfg *config.Config, pipeline *recognition.Pipeline, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hs := &HTTPServer{
		Router:   gin.Default(),
		Config:   cfg,
		jobs:     jobs.NewManager(cfg.Server.MaxJobs, cfg.Server.JobTTL, cfg.Server.CleanupInterval, logger),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   logger,
		pipeline: pipeline,
	}
	hs.registerRoutes()
	return hs
}

func (hs *HTTPServer) registerRoutes() {
	hs.Router.GET("/status", hs.statusHandler)
	hs.Router.POST("/train", hs.trainHandler)
	hs.Router.GET("/train", hs.listJobsHandler)
	hs.Router.GET("/train/:id", hs.jobHandler)
	hs.Router.DELETE("/train/:id", hs.cancelJobHandler)
	hs.Router.GET("/train/:id/ws", hs.progressHandler)
	hs.Router.POST("/recognize", hs.recognizeHandler)
	hs.Router.POST("/project", hs.projectHandler)
}

// Pipeline 当前识别流程，尚未训练时为 nil
func (hs *HTTPServer) Pipeline() *recognition.Pipeline {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.pipeline
}

// SetPipeline 替换识别流程
func (hs *HTTPServer) SetPipeline(p *recognition.Pipeline) {
	hs.mu.Lock()
	hs.pipeline = p
	hs.mu.Unlock()
}

// Start 启动HTTP服务器，阻塞直到服务器关闭
func (hs *HTTPServer) Start() error {
	hs.server = &http.Server{
		Addr:              ":" + hs.Config.Server.Port,
		Handler:           hs.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	attrs := []any{"addr", hs.server.Addr, "model_loaded", hs.Pipeline() != nil}
	if ip, err := LocalIP(); err == nil {
		attrs = append(attrs, "url", "http://"+ip+":"+hs.Config.Server.Port)
	}
	hs.logger.Info("识别服务启动", attrs...)
	if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止接收请求，取消并等待所有训练任务
func (hs *HTTPServer) Stop(ctx context.Context) error {
	var err error
	if hs.server != nil {
		err = hs.server.Shutdown(ctx)
	}
	hs.jobs.Close()
	return err
}

// Jobs 训练任务管理器
func (hs *HTTPServer) Jobs() *jobs.Manager { return hs.jobs }
