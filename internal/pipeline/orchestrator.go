package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rehabmohamed2/CodeGuard-project/internal/config"
	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
)

var (
	// ErrQueueFull is returned by Submit when no worker can take the job.
	ErrQueueFull = errors.New("job queue is full")
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
)

// Analyzer runs every classifier over a batch of snippets.
type Analyzer interface {
	Analyze(ctx context.Context, code []string, dev model.Device) ([]inference.Report, error)
}

// TokenCounter is implemented by analyzers that can measure code in their
// model vocabulary. The chunker budgets snippets with it when present.
type TokenCounter interface {
	CountTokens(code string) int
}

// Orchestrator manages the file analysis pipeline.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	analyzer Analyzer
	log      *slog.Logger
	cfg      config.Config
	workCfg  WorkerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, analyzer Analyzer, log *slog.Logger) *Orchestrator {
	chunk := cfg.Chunker()
	if tc, ok := analyzer.(TokenCounter); ok {
		chunk.Count = tc.CountTokens
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		analyzer: analyzer,
		log:      log,
		cfg:      cfg,
		workCfg: WorkerConfig{
			Chunk:         chunk,
			BatchSize:     cfg.MaxBatchSize,
			MaxConcurrent: cfg.MaxConcurrentInfer,
			Timeout:       cfg.AnalysisTimeout,
			PDFFallback:   cfg.PDFFallbackPdftotext,
		},
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.analyzer, o.log, o.workCfg)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels running jobs and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		o.log.Info("job queued", "job_id", job.ID, "filename", job.Filename, "queue_depth", len(o.queue))
		return nil
	default:
		job.AddError(ErrQueueFull.Error())
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Cancel stops a queued or running job. A queued job is skipped when a
// worker picks it up; a running job has its context cancelled.
func (o *Orchestrator) Cancel(id string) error {
	job := o.jobs.Get(id)
	if job == nil {
		return ErrJobNotFound
	}
	if !job.Cancel() {
		return ErrJobFinished
	}
	o.log.Info("job cancelled", "job_id", id)
	return nil
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// JobCount returns the number of jobs still held in the store.
func (o *Orchestrator) JobCount() int {
	return o.jobs.Len()
}
