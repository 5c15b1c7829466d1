package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"FaceRecDev/pkg/maths"
	"FaceRecDev/pkg/training"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

/*
该文件管理后台训练任务
每个任务在独立的 goroutine 中运行，进度通过订阅通道推送，结束后保留一段时间供查询
*/

// ErrNotFound 任务不存在或已被清理
var ErrNotFound = errors.New("job not found")

// ErrBusy 同时运行的任务数达到上限
var ErrBusy = errors.New("too many running jobs")

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Snapshot 任务状态的只读副本
type Snapshot struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Epoch      int        `json:"epoch"`
	MSE        float64    `json:"mse"`
	Rate       float64    `json:"learning_rate"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Func 任务主体，report 在每轮训练结束后调用
type Func func(ctx context.Context, report func(training.EpochReport)) error

type job struct {
	snapshot    Snapshot
	cancel      context.CancelFunc
	subscribers map[chan training.EpochReport]struct{}
}

func (j *job) finished() bool { return j.snapshot.FinishedAt != nil }

// Manager 训练任务管理器
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*job
	running int

	maxRunning int
	ttl        time.Duration
	interval   time.Duration
	logger     *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// NewManager 创建任务管理器并启动过期任务清理
func NewManager(maxRunning int, ttl, interval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		jobs:       make(map[string]*job),
		maxRunning: maxRunning,
		ttl:        ttl,
		interval:   interval,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.Purge(now)
		case <-m.stopCh:
			return
		}
	}
}

// Purge 删除结束时间早于 now-ttl 的任务，返回删除个数
func (m *Manager) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, j := range m.jobs {
		if j.finished() && now.Sub(*j.snapshot.FinishedAt) > m.ttl {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("清理过期训练任务", "removed", removed)
	}
	return removed
}

// Submit 启动新任务，返回任务 ID
func (m *Manager) Submit(fn Func) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.stopCh:
		return "", errors.Wrap(maths.ErrInvalidArgument, "任务管理器已关闭")
	default:
	}
	if m.running >= m.maxRunning {
		return "", errors.Wrapf(ErrBusy, "已有 %d 个任务在运行", m.running)
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		snapshot:    Snapshot{ID: id, Status: StatusRunning, CreatedAt: time.Now()},
		cancel:      cancel,
		subscribers: make(map[chan training.EpochReport]struct{}),
	}
	m.jobs[id] = j
	m.running++

	m.wg.Add(1)
	go m.run(ctx, j, fn)
	m.logger.Info("训练任务已提交", "job", id)
	return id, nil
}

func (m *Manager) run(ctx context.Context, j *job, fn Func) {
	defer m.wg.Done()
	err := fn(ctx, func(r training.EpochReport) { m.report(j, r) })

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	j.snapshot.FinishedAt = &now
	switch {
	case err == nil:
		j.snapshot.Status = StatusSucceeded
	case errors.Is(err, context.Canceled):
		j.snapshot.Status = StatusCancelled
		j.snapshot.Error = err.Error()
	default:
		j.snapshot.Status = StatusFailed
		j.snapshot.Error = err.Error()
	}
	for ch := range j.subscribers {
		close(ch)
	}
	j.subscribers = nil
	j.cancel()
	m.running--
	m.logger.Info("训练任务结束",
		"job", j.snapshot.ID, "status", j.snapshot.Status, "epoch", j.snapshot.Epoch,
		"elapsed", now.Sub(j.snapshot.CreatedAt))
}

// report 更新进度并推送给订阅者，订阅者处理不过来时丢弃该条
func (m *Manager) report(j *job, r training.EpochReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.snapshot.Epoch = r.Epoch
	j.snapshot.MSE = r.MSE
	j.snapshot.Rate = r.LearningRate
	for ch := range j.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}

// Get 查询任务状态
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, errors.Wrapf(ErrNotFound, "任务 %s", id)
	}
	return j.snapshot, nil
}

// List 所有保留中的任务
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot)
	}
	return out
}

// Subscribe 订阅任务进度，任务结束时通道被关闭
// 任务已经结束时返回一个已关闭的通道；返回的函数用于提前退订
func (m *Manager) Subscribe(id string, buffer int) (<-chan training.EpochReport, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil, errors.Wrapf(ErrNotFound, "任务 %s", id)
	}
	ch := make(chan training.EpochReport, buffer)
	if j.finished() {
		close(ch)
		return ch, func() {}, nil
	}
	j.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := j.subscribers[ch]; ok {
			delete(j.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// Cancel 取消运行中的任务，任务会在当前训练轮结束后停止
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "任务 %s", id)
	}
	j.cancel()
	return nil
}

// Wait 等待所有任务结束
func (m *Manager) Wait() { m.wg.Wait() }

// Close 停止清理循环，取消并等待所有任务
func (m *Manager) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		close(m.stopCh)
		for _, j := range m.jobs {
			j.cancel()
		}
		m.mu.Unlock()
		m.wg.Wait()
	})
}
