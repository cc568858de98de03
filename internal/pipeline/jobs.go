package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusChunking   JobStatus = "chunking"
	StatusPredicting JobStatus = "predicting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusCancelled:
		return true
	}
	return false
}

// Job tracks the state of a single file analysis.
type Job struct {
	mu sync.Mutex

	ID     string `json:"job_id"`
	UserID string `json:"user_id"`

	Status   JobStatus    `json:"status"`
	Phase    string       `json:"phase"`
	Filename string       `json:"filename"`
	Device   model.Device `json:"device"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	reports  []SnippetReport
	errors   []string
	cancel   context.CancelFunc
}

// Progress tracks processing progress.
type Progress struct {
	TotalSnippets     int      `json:"total_snippets"`
	SnippetsProcessed int      `json:"snippets_processed"`
	Vulnerable        int      `json:"vulnerable"`
	Errors            []string `json:"errors"`
}

// SnippetReport is the analysis of one snippet together with where it came
// from.
type SnippetReport struct {
	snippet.Snippet
	inference.Report
}

// NewJob creates a queued job with a fresh id.
func NewJob(filename, userID string, dev model.Device, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Device:    dev,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs that have not changed within the TTL.
// Running jobs are kept however old they are.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically. A cancelled job stays cancelled.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return
	}
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// CurrentStatus returns the status under the job lock.
func (j *Job) CurrentStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotalSnippets records the snippet count after chunking.
func (j *Job) SetTotalSnippets(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalSnippets = n
	j.UpdatedAt = time.Now()
}

// AddProcessed counts n snippets as done, whether they succeeded or not.
func (j *Job) AddProcessed(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.SnippetsProcessed += n
	j.UpdatedAt = time.Now()
}

// SetReports stores the final per-snippet reports.
func (j *Job) SetReports(reports []SnippetReport) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports = reports
	j.Progress.Vulnerable = 0
	for _, r := range reports {
		if r.Vulnerable {
			j.Progress.Vulnerable++
		}
	}
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// start attaches the cancel function of the job's run context. It returns
// false if the job was cancelled while still queued.
func (j *Job) start(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return false
	}
	j.cancel = cancel
	return true
}

// finish drops the file bytes and the run context once processing ends.
func (j *Job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
	j.cancel = nil
}

// Cancel marks an unfinished job cancelled and stops its run context. It
// returns false if the job had already finished.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	j.Status = StatusCancelled
	j.Phase = "cancelled"
	j.UpdatedAt = time.Now()
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string          `json:"job_id"`
	UserID      string          `json:"user_id"`
	Status      JobStatus       `json:"status"`
	Phase       string          `json:"phase"`
	Filename    string          `json:"filename"`
	Device      model.Device    `json:"device"`
	ContentHash string          `json:"content_hash,omitempty"`
	Progress    Progress        `json:"progress"`
	Results     []SnippetReport `json:"results"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	results := append([]SnippetReport{}, j.reports...)
	return JobSnapshot{
		ID:          j.ID,
		UserID:      j.UserID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Device:      j.Device,
		ContentHash: j.ContentHash,
		Progress: Progress{
			TotalSnippets:     j.Progress.TotalSnippets,
			SnippetsProcessed: j.Progress.SnippetsProcessed,
			Vulnerable:        j.Progress.Vulnerable,
			Errors:            errs,
		},
		Results:   results,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// setContentHash records the digest of the uploaded bytes.
func (j *Job) setContentHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = h
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
