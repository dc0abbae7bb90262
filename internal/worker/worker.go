// worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"wildfire-analytics/internal/config"
	"wildfire-analytics/internal/domain"
	"wildfire-analytics/internal/messaging"
)

// Consumer is the part of the broker a worker pulls deliveries from.
type Consumer interface {
	Consume(ctx context.Context, queues []domain.QueueName) (*messaging.Delivery, error)
	Ack(ctx context.Context, d *messaging.Delivery) error
}

type Worker struct {
	id          string
	broker      Consumer
	executor    *Executor
	queues      []domain.QueueName
	concurrency int
	taskTimeout time.Duration
	logger      *zap.Logger

	monitorInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	isRunning       atomic.Bool
	processed       atomic.Int64
	failed          atomic.Int64
	retried         atomic.Int64
	processing      atomic.Int32
}

func NewWorker(id string, broker Consumer, executor *Executor, cfg *config.Config, logger *zap.Logger) (*Worker, error) {
	queues := make([]domain.QueueName, 0, len(cfg.WorkerQueues))
	for _, name := range cfg.WorkerQueues {
		q, err := domain.ParseQueueName(name)
		if err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}

	return &Worker{
		id:              id,
		broker:          broker,
		executor:        executor,
		queues:          queues,
		concurrency:     cfg.WorkerCount,
		taskTimeout:     cfg.TaskTimeout,
		logger:          logger.Named("worker").With(zap.String("worker_id", id)),
		monitorInterval: time.Minute,
		stopChan:        make(chan struct{}),
	}, nil
}

// Start runs the consume loops and blocks until Stop is called or ctx is
// done. Tasks already running are allowed to finish.
func (w *Worker) Start(ctx context.Context) error {
	if !w.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %s already running", w.id)
	}
	w.logger.Info("Worker starting",
		zap.Int("concurrency", w.concurrency),
		zap.Any("queues", w.queues))

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.consumeLoop(loopCtx, i)
	}
	go w.runMonitor(loopCtx)

	select {
	case <-w.stopChan:
	case <-ctx.Done():
	}
	w.isRunning.Store(false)
	cancel()

	w.wg.Wait()

	w.logger.Info("Worker stopped",
		zap.Int64("processed", w.processed.Load()),
		zap.Int64("failed", w.failed.Load()),
		zap.Int64("retried", w.retried.Load()))
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("slot", slot))

	for {
		d, err := w.broker.Consume(ctx, w.queues)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, messaging.ErrBrokerClosed) {
				return
			}
			log.Warn("Failed to consume task", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if d == nil {
			continue
		}
		w.handleDelivery(d)
	}
}

// handleDelivery executes one delivery to completion. The task context is
// detached from the loop context so that Stop does not abort running jobs.
func (w *Worker) handleDelivery(d *messaging.Delivery) {
	w.processing.Add(1)
	defer w.processing.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), w.taskTimeout)
	status := w.executor.Execute(ctx, d.Message)
	cancel()

	switch status.Status {
	case StatusRetrying:
		w.retried.Add(1)
	case StatusError:
		w.failed.Add(1)
	default:
		w.processed.Add(1)
	}

	ackCtx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := w.broker.Ack(ackCtx, d); err != nil {
		w.logger.Warn("Failed to acknowledge delivery",
			zap.String("delivery_id", d.ID),
			zap.String("task_id", d.Message.TaskID),
			zap.Error(err))
	}
}

func (w *Worker) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(w.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fields := []zap.Field{
				zap.Int64("processed", w.processed.Load()),
				zap.Int64("failed", w.failed.Load()),
				zap.Int64("retried", w.retried.Load()),
				zap.Int32("processing", w.processing.Load()),
			}
			if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
				fields = append(fields,
					zap.Float64("host_mem_used_percent", vm.UsedPercent),
					zap.Uint64("host_mem_available", vm.Available))
			}
			w.logger.Info("Worker stats", fields...)
		}
	}
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker")
		close(w.stopChan)
	})
}

type Stats struct {
	ID         string `json:"id"`
	Running    bool   `json:"running"`
	Processed  int64  `json:"processed"`
	Failed     int64  `json:"failed"`
	Retried    int64  `json:"retried"`
	Processing int32  `json:"processing"`
}

func (w *Worker) GetStats() Stats {
	return Stats{
		ID:         w.id,
		Running:    w.isRunning.Load(),
		Processed:  w.processed.Load(),
		Failed:     w.failed.Load(),
		Retried:    w.retried.Load(),
		Processing: w.processing.Load(),
	}
}

func (w *Worker) IsRunning() bool {
	return w.isRunning.Load()
}
