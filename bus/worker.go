package bus

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
)

// Processor executes one claimed recompute job.
type Processor interface {
	Process(ctx context.Context, job *RecomputeJob) error
}

// WorkerPoolConfig sizes and paces the pool.
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`
	PollInterval time.Duration `json:"poll_interval"`
	StopTimeout  time.Duration `json:"stop_timeout"`
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 1 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// WorkerPool drains the persisted recompute queue. Start re-queues jobs
// orphaned by a previous crash before spawning workers; Stop cancels the
// workers and waits, bounded by the stop timeout, for in-flight jobs to
// finish.
type WorkerPool struct {
	store     *JobStore
	processor Processor
	config    WorkerPoolConfig
	logger    *zap.SugaredLogger

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	started   bool
}

func NewWorkerPool(ctx context.Context, store *JobStore, processor Processor, cfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		store:     store,
		processor: processor,
		config:    cfg,
		logger:    logger,
		parentCtx: ctx,
		ctx:       poolCtx,
		cancel:    cancel,
	}
}

// Start recovers orphaned jobs and spawns the workers. Calling Start
// after Stop recreates the worker context.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.started = true
	wp.mu.Unlock()

	requeued, err := wp.store.RequeueRunning(wp.ctx)
	if err != nil {
		if wp.logger != nil {
			wp.logger.Warnw("failed to recover orphaned jobs", "error", err)
		}
	} else if requeued > 0 && wp.logger != nil {
		wp.logger.Infow("recovered orphaned recompute jobs", "count", requeued)
	}

	if warning := checkMemoryPressure(wp.config.Workers); warning != "" && wp.logger != nil {
		wp.logger.Warnw("memory pressure warning", "warning", warning, "workers", wp.config.Workers)
	}

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels the workers and waits up to the stop timeout.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if wp.logger != nil {
			wp.logger.Debugw("worker pool stopped cleanly")
		}
	case <-time.After(wp.config.StopTimeout):
		if wp.logger != nil {
			wp.logger.Warnw("worker pool stop timed out", "timeout", wp.config.StopTimeout)
		}
	}
}

// Metrics reports pool and queue state.
func (wp *WorkerPool) Metrics(ctx context.Context) PoolMetrics {
	m := PoolMetrics{WorkersTotal: wp.config.Workers}
	queued, running, err := wp.store.Counts(ctx)
	if err == nil {
		m.JobsQueued = queued
		m.JobsRunning = running
	}
	return m
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNext(); err != nil {
				select {
				case <-wp.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) {
					// Database closed during shutdown
					return
				}
				errorCount++
				if wp.logger != nil {
					wp.logger.Errorw("worker failed processing job",
						"worker_id", id, "error", err, "consecutive_errors", errorCount)
				}
				if errorCount >= maxConsecutiveErrors {
					time.Sleep(backoff)
					backoff = min(backoff*2, maxBackoff)
				}
				continue
			}
			errorCount = 0
			backoff = time.Second
		}
	}
}

// processNext claims one job and runs it. An empty queue is not an error.
func (wp *WorkerPool) processNext() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.store.NextQueued(wp.ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	if err := wp.processor.Process(wp.ctx, job); err != nil {
		select {
		case <-wp.ctx.Done():
			// Shutdown mid-job: put it back for the next start.
			_, requeueErr := wp.store.db.ExecContext(context.Background(), `
				UPDATE recompute_jobs SET status = ?, updated_at = ? WHERE id = ?
			`, JobStatusQueued, time.Now().UTC(), job.ID)
			return requeueErr
		default:
		}
		return wp.store.Fail(wp.ctx, job.ID, err)
	}
	return wp.store.Complete(wp.ctx, job.ID)
}
