package server

import (
	"context"
	"net/http"

	"FaceRecDev/pkg/core/jobs"
	"FaceRecDev/pkg/dataProcess"
	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/recognition"
	"FaceRecDev/pkg/training"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// SubjectInput 一个身份及其图像，images 与 image_data 可以混用
type SubjectInput struct {
	Label     string      `json:"label"`
	Images    [][]float64 `json:"images,omitempty"`
	ImageData []string    `json:"image_data,omitempty"`
}

// TrainRequest 训练请求，未给出的参数取配置文件中的值
type TrainRequest struct {
	Subjects   []SubjectInput `json:"subjects"`
	Hiddens    *int           `json:"hiddens,omitempty"`
	Components *int           `json:"components,omitempty"`
	Variance   *float64       `json:"variance,omitempty"`
	MaxEpochs  *int           `json:"max_epochs,omitempty"`
	TargetMSE  *float64       `json:"target_mse,omitempty"`
	Seed       *uint64        `json:"seed,omitempty"`
}

func (req *TrainRequest) subjects() ([]dataProcess.Subject, error) {
	if len(req.Subjects) == 0 {
		return nil, errors.Wrap(maths.ErrInvalidArgument, "subjects 不能为空")
	}
	out := make([]dataProcess.Subject, 0, len(req.Subjects))
	for i, s := range req.Subjects {
		if s.Label == "" {
			return nil, errors.Wrapf(maths.ErrInvalidArgument, "第 %d 个身份缺少 label", i)
		}
		subject := dataProcess.Subject{Label: s.Label}
		for _, img := range s.Images {
			subject.Images = append(subject.Images, maths.NewVectorFrom(img))
		}
		for j, data := range s.ImageData {
			v, err := DecodeVector(data)
			if err != nil {
				return nil, errors.WithMessagef(err, "身份 %q 的第 %d 个 image_data", s.Label, j)
			}
			subject.Images = append(subject.Images, v)
		}
		if len(subject.Images) == 0 {
			return nil, errors.Wrapf(maths.ErrInvalidArgument, "身份 %q 没有图像", s.Label)
		}
		out = append(out, subject)
	}
	return out, nil
}

func (req *TrainRequest) apply(opts *recognition.BuildOptions) {
	if req.Hiddens != nil {
		opts.Hiddens = *req.Hiddens
	}
	if req.Components != nil {
		opts.Components = *req.Components
	}
	if req.Variance != nil {
		opts.Variance = *req.Variance
	}
	if req.MaxEpochs != nil {
		opts.Run.MaxEpochs = *req.MaxEpochs
	}
	if req.TargetMSE != nil {
		opts.Run.TargetMSE = *req.TargetMSE
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
}

// errorStatus 输入类错误返回 400，其余返回 500
func errorStatus(err error) int {
	switch {
	case errors.Is(err, maths.ErrDimensionMismatch),
		errors.Is(err, maths.ErrInvalidArgument),
		errors.Is(err, maths.ErrIO),
		errors.Is(err, maths.ErrEmptySet):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrBusy):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// trainHandler 提交后台训练任务
func (hs *HTTPServer) trainHandler(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	subjects, err := req.subjects()
	if err != nil {
		abortWithError(c, err)
		return
	}
	opts := hs.Config.BuildOptions()
	opts.Logger = hs.logger
	req.apply(&opts)

	id, err := hs.jobs.Submit(func(ctx context.Context, report func(training.EpochReport)) error {
		opts.Run.Progress = report
		p, err := recognition.Build(ctx, subjects, opts)
		if err != nil {
			return err
		}
		if dir := hs.Config.Server.ModelDir; dir != "" {
			if err := p.SaveDir(dir); err != nil {
				return err
			}
		}
		hs.SetPipeline(p)
		return nil
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

func (hs *HTTPServer) listJobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, hs.jobs.List())
}

func (hs *HTTPServer) jobHandler(c *gin.Context) {
	snap, err := hs.jobs.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (hs *HTTPServer) cancelJobHandler(c *gin.Context) {
	if err := hs.jobs.Cancel(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// currentPipeline 没有可用模型时直接返回 409
func (hs *HTTPServer) currentPipeline(c *gin.Context) (*recognition.Pipeline, bool) {
	p := hs.Pipeline()
	if p == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no trained model"})
		return nil, false
	}
	return p, true
}

func (hs *HTTPServer) recognizeHandler(c *gin.Context) {
	p, ok := hs.currentPipeline(c)
	if !ok {
		return
	}
	var req imageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	image, err := req.vector()
	if err != nil {
		abortWithError(c, err)
		return
	}
	decision, err := p.Recognize(image)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (hs *HTTPServer) projectHandler(c *gin.Context) {
	p, ok := hs.currentPipeline(c)
	if !ok {
		return
	}
	var req imageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	image, err := req.vector()
	if err != nil {
		abortWithError(c, err)
		return
	}
	features, err := p.Project(image)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"features": features.Data()})
}

func (hs *HTTPServer) statusHandler(c *gin.Context) {
	status := gin.H{
		"status":       "online",
		"model_loaded": false,
		"jobs":         len(hs.jobs.List()),
	}
	if p := hs.Pipeline(); p != nil {
		status["model_loaded"] = true
		status["identities"] = p.Identities()
		status["image_size"] = p.Model().ImageSize()
		status["components"] = p.Model().NumComponents()
		status["hiddens"] = p.Network().Hiddens()
		status["epochs"] = p.Epochs()
		status["rule"] = p.Rule().String()
	}
	c.JSON(http.StatusOK, status)
}
