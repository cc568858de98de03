package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rehabmohamed2/CodeGuard-project/internal/chunker"
	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
	"github.com/rehabmohamed2/CodeGuard-project/internal/source"
)

// WorkerConfig bounds how a worker splits and schedules one job.
type WorkerConfig struct {
	Chunk         chunker.Config
	BatchSize     int           // Snippets per Analyze call
	MaxConcurrent int           // Analyze calls in flight per job
	Timeout       time.Duration // Deadline for a whole job; zero means none
	PDFFallback   bool
}

// Worker processes a single analysis job.
type Worker struct {
	analyzer Analyzer
	log      *slog.Logger
	cfg      WorkerConfig
	backoff  func(attempt int) time.Duration
}

func NewWorker(analyzer Analyzer, log *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Worker{
		analyzer: analyzer,
		log:      log,
		cfg:      cfg,
		backoff:  Backoff,
	}
}

// Process runs the full analysis pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "user_id", job.UserID, "filename", job.Filename)

	var cancel context.CancelFunc
	if w.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	if !job.start(cancel) {
		log.Info("skipping cancelled job")
		job.finish()
		return
	}
	defer job.finish()

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	data := job.FileData()
	job.setContentHash(ContentHashHex(data))

	r, err := source.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if pr, ok := r.(*source.PDFReader); ok {
		pr.FallbackPdftotext = w.cfg.PDFFallback
	}

	src, err := r.Read(bytes.NewReader(data), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	// Phase 2: Chunk
	job.SetStatus(StatusChunking, "chunking")
	snippets := chunker.SplitSource(src, w.cfg.Chunk)
	job.SetTotalSnippets(len(snippets))
	log.Info("split source", "blocks", len(src.Blocks), "snippets", len(snippets))

	if len(snippets) == 0 {
		log.Warn("no code found")
		job.AddError("no code found in file")
		job.SetStatus(StatusFailed, "chunking")
		return
	}

	// Phase 3: Predict batches with bounded concurrency.
	job.SetStatus(StatusPredicting, "predicting")
	batches := splitBatches(snippets, w.cfg.BatchSize)

	type batchResult struct {
		reports []inference.Report
		err     error
		idx     int
	}
	results := make(chan batchResult, len(batches))
	sem := make(chan struct{}, w.cfg.MaxConcurrent)

	for i, batch := range batches {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results <- batchResult{err: ctx.Err(), idx: i}
			continue
		}
		go func(i int, batch []snippet.Snippet) {
			defer func() { <-sem }()
			reports, err := w.analyzeBatch(ctx, log, i, batch, job)
			results <- batchResult{reports: reports, err: err, idx: i}
		}(i, batch)
	}

	byBatch := make([][]inference.Report, len(batches))
	hadErrors, succeeded := false, 0
	for range batches {
		r := <-results
		job.AddProcessed(len(batches[r.idx]))
		if r.err != nil {
			if !errors.Is(r.err, context.Canceled) {
				log.Error("analysis failed", "batch", r.idx, "error", r.err)
				job.AddError(fmt.Sprintf("batch %d: %s", r.idx, r.err))
			}
			hadErrors = true
			continue
		}
		byBatch[r.idx] = r.reports
		succeeded++
	}

	var out []SnippetReport
	for i, reports := range byBatch {
		for k, rep := range reports {
			out = append(out, SnippetReport{Snippet: batches[i][k], Report: rep})
		}
	}
	job.SetReports(out)

	if job.CurrentStatus() == StatusCancelled {
		log.Info("job cancelled", "reports", len(out))
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		job.AddError(fmt.Sprintf("analysis timed out after %s", w.cfg.Timeout))
	}

	log.Info("analysis complete", "reports", len(out), "batches", len(batches), "failed_batches", len(batches)-succeeded)
	switch {
	case !hadErrors:
		job.SetStatus(StatusCompleted, "done")
	case succeeded > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusFailed, "predicting")
	}
}

// analyzeBatch calls the analyzer, retrying while the model server reports
// a transient failure.
func (w *Worker) analyzeBatch(ctx context.Context, log *slog.Logger, idx int, batch []snippet.Snippet, job *Job) ([]inference.Report, error) {
	code := make([]string, len(batch))
	for i, s := range batch {
		code[i] = s.Code
	}

	var (
		reports []inference.Report
		err     error
	)
	for attempt := range MaxRetries {
		reports, err = w.analyzer.Analyze(ctx, code, job.Device)
		if err == nil || !IsRetryable(err) || attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable model error", "batch", idx, "attempt", attempt, "error", err)
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if len(reports) != len(batch) {
		return nil, fmt.Errorf("analyzer returned %d reports for %d snippets", len(reports), len(batch))
	}
	return reports, nil
}

func splitBatches(snippets []snippet.Snippet, size int) [][]snippet.Snippet {
	var out [][]snippet.Snippet
	for start := 0; start < len(snippets); start += size {
		out = append(out, snippets[start:min(start+size, len(snippets))])
	}
	return out
}
