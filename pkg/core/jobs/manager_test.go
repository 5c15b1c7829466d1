package jobs

import (
	"context"
	"testing"
	"time"

	"FaceRecDev/pkg/training"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, maxRunning int) *Manager {
	t.Helper()
	m := NewManager(maxRunning, time.Minute, time.Hour, nil)
	t.Cleanup(m.Close)
	return m
}

func TestSubmitReportsProgress(t *testing.T) {
	m := newManager(t, 1)
	release := make(chan struct{})
	id, err := m.Submit(func(ctx context.Context, report func(training.EpochReport)) error {
		<-release
		for i := 1; i <= 3; i++ {
			report(training.EpochReport{Epoch: i, MSE: 1 / float64(i), LearningRate: 0.1})
		}
		return nil
	})
	require.NoError(t, err)

	ch, _, err := m.Subscribe(id, 8)
	require.NoError(t, err)
	close(release)

	var epochs []int
	for r := range ch {
		epochs = append(epochs, r.Epoch)
	}
	assert.Equal(t, []int{1, 2, 3}, epochs)

	snap, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 3, snap.Epoch)
	assert.NotNil(t, snap.FinishedAt)
}

func TestSubscribeAfterFinish(t *testing.T) {
	m := newManager(t, 1)
	id, err := m.Submit(func(context.Context, func(training.EpochReport)) error { return errors.New("boom") })
	require.NoError(t, err)
	m.Wait()

	ch, _, err := m.Subscribe(id, 1)
	require.NoError(t, err)
	_, open := <-ch
	assert.False(t, open)

	snap, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)
}

func TestCancel(t *testing.T) {
	m := newManager(t, 1)
	id, err := m.Submit(func(ctx context.Context, _ func(training.EpochReport)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	require.NoError(t, m.Cancel(id))
	m.Wait()

	snap, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.True(t, errors.Is(m.Cancel("missing"), ErrNotFound))
}

func TestSubmitLimit(t *testing.T) {
	m := newManager(t, 1)
	release := make(chan struct{})
	_, err := m.Submit(func(context.Context, func(training.EpochReport)) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	_, err = m.Submit(func(context.Context, func(training.EpochReport)) error { return nil })
	assert.True(t, errors.Is(err, ErrBusy))

	close(release)
	m.Wait()
	_, err = m.Submit(func(context.Context, func(training.EpochReport)) error { return nil })
	assert.NoError(t, err)
}

func TestPurge(t *testing.T) {
	m := newManager(t, 2)
	release := make(chan struct{})
	done, err := m.Submit(func(context.Context, func(training.EpochReport)) error { return nil })
	require.NoError(t, err)
	running, err := m.Submit(func(context.Context, func(training.EpochReport)) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	// 等待第一个任务结束
	require.Eventually(t, func() bool {
		s, err := m.Get(done)
		return err == nil && s.Status == StatusSucceeded
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, m.Purge(time.Now()))
	assert.Equal(t, 1, m.Purge(time.Now().Add(2*time.Minute)))
	_, err = m.Get(done)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = m.Get(running)
	assert.NoError(t, err)
	assert.Len(t, m.List(), 1)

	close(release)
}

func TestUnsubscribe(t *testing.T) {
	m := newManager(t, 1)
	release := make(chan struct{})
	id, err := m.Submit(func(_ context.Context, report func(training.EpochReport)) error {
		<-release
		report(training.EpochReport{Epoch: 1})
		return nil
	})
	require.NoError(t, err)

	ch, unsubscribe, err := m.Subscribe(id, 1)
	require.NoError(t, err)
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	close(release)
	m.Wait()
}
