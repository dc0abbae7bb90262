package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []domain.JobType
	failOn   domain.JobType
	gate     chan struct{}
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.JobType, args domain.Arguments) (string, error) {
	if q.gate != nil {
		<-q.gate
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if args != (domain.Arguments{}) {
		return "", errors.New("scheduled jobs take default arguments")
	}
	if job == q.failOn {
		return "", errors.New("redis: connection refused")
	}
	q.enqueued = append(q.enqueued, job)
	return fmt.Sprintf("task-%d", len(q.enqueued)), nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

func testConfig(interval time.Duration, runOnStart bool) *config.Config {
	cfg := config.Default()
	cfg.ScheduleInterval = interval
	cfg.ScheduleRunOnStart = runOnStart
	return cfg
}

func TestRunNow_EnqueuesEveryJob(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, testConfig(24*time.Hour, false), zap.NewNop())

	out := s.RunNow(context.Background())

	assert.Empty(t, out.Errors)
	assert.Len(t, out.TaskIDs, 4)
	assert.Equal(t, []domain.JobType{domain.JobClustering, domain.JobPCA, domain.JobForecast, domain.JobRisk}, q.enqueued)
}

func TestRunNow_ContinuesAfterFailure(t *testing.T) {
	q := &fakeQueue{failOn: domain.JobPCA}
	s := New(q, testConfig(24*time.Hour, false), zap.NewNop())

	out := s.RunNow(context.Background())

	require.Len(t, out.Errors, 1)
	assert.ErrorContains(t, out.Errors[domain.JobPCA], "connection refused")
	assert.Equal(t, []domain.JobType{domain.JobClustering, domain.JobForecast, domain.JobRisk}, q.enqueued)
}

func TestScheduler_FiresOnInterval(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, testConfig(time.Second, false), zap.NewNop())

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.Equal(t, 0, q.count())

	require.Eventually(t, func() bool { return q.count() >= 4 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Zero(t, q.count()%4)
}

func TestScheduler_RunOnStart(t *testing.T) {
	q := &fakeQueue{}
	s := New(q, testConfig(24*time.Hour, true), zap.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return q.count() == 4 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_StopWaitsForRunOnStart(t *testing.T) {
	q := &fakeQueue{gate: make(chan struct{})}
	s := New(q, testConfig(24*time.Hour, true), zap.NewNop())
	require.NoError(t, s.Start())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the startup fan-out was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(q.gate)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the fan-out finished")
	}
	assert.Equal(t, 4, q.count())
}
