// Package pipeline runs the asynchronous book ingestion pipeline over a
// durable SQLite-backed job queue: workers claim jobs, drive the stages in
// order, report progress, and retry transient failures with exponential
// backoff.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/readleaf/readleaf/internal/bookinfo"
	"github.com/readleaf/readleaf/internal/store"
)

var (
	// ErrJobActive means the document already has a queued or active job.
	ErrJobActive = errors.New("document already has an active job")

	// ErrChaptersExist means the document was already segmented; pass force
	// to regenerate.
	ErrChaptersExist = errors.New("document already has chapters")

	// ErrNoSourceText means the document never passed conversion, so there
	// is nothing to re-segment.
	ErrNoSourceText = errors.New("document has no extracted text")
)

// Config tunes the job runner.
type Config struct {
	WorkerCount  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Orchestrator owns the worker pool and the submit/status surface. The
// queue store is passed in explicitly; its lifecycle belongs to the process
// entry point.
type Orchestrator struct {
	store  *store.Store
	worker *Worker
	log    *slog.Logger
	cfg    Config

	cancel context.CancelFunc
	group  *errgroup.Group
	wake   chan struct{}
}

func NewOrchestrator(st *store.Store, conv Converter, ex *bookinfo.Extractor, log *slog.Logger, cfg Config) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Orchestrator{
		store:  st,
		worker: NewWorker(st, conv, ex, log, cfg.RetryBackoff),
		log:    log,
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
	}
}

// Start launches the worker pool. Workers poll the durable queue so jobs
// enqueued before a restart are picked up again.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.group, workerCtx = errgroup.WithContext(workerCtx)

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.group.Go(func() error {
			o.runWorker(workerCtx)
			return nil
		})
	}
}

func (o *Orchestrator) runWorker(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		job, err := o.store.ClaimJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.log.Error("claim job failed", "error", err)
		}
		if job != nil {
			o.worker.Process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		case <-ticker.C:
		}
	}
}

// Stop shuts the worker pool down and waits for in-flight jobs.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	if o.group != nil {
		_ = o.group.Wait()
	}
}

// SubmitIngest enqueues the full pipeline for an uploaded PDF. Refused when
// the document already has an active job or existing chapters.
func (o *Orchestrator) SubmitIngest(ctx context.Context, documentID, pdfPath, title string) (*store.Job, error) {
	if err := o.checkIdle(ctx, documentID); err != nil {
		return nil, err
	}
	count, err := o.store.CountChapters(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrChaptersExist
	}

	job := &store.Job{
		ID:          uuid.New().String(),
		Type:        store.JobIngest,
		DocumentID:  documentID,
		InputPath:   pdfPath,
		Title:       title,
		MaxAttempts: o.cfg.MaxAttempts,
	}
	if err := o.store.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	o.log.Info("ingest job enqueued", "job_id", job.ID, "document_id", documentID)
	o.notify()
	return job, nil
}

// SubmitSplit enqueues chapter regeneration from already-extracted text.
// Requires stored source text; refuses documents that already have chapters
// unless force is set.
func (o *Orchestrator) SubmitSplit(ctx context.Context, documentID string, force bool) (*store.Job, error) {
	if err := o.checkIdle(ctx, documentID); err != nil {
		return nil, err
	}

	text, err := o.store.SourceText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrNoSourceText
	}

	if !force {
		count, err := o.store.CountChapters(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrChaptersExist
		}
	}

	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	job := &store.Job{
		ID:          uuid.New().String(),
		Type:        store.JobSplit,
		DocumentID:  documentID,
		Title:       doc.Title,
		MaxAttempts: o.cfg.MaxAttempts,
	}
	if err := o.store.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	o.log.Info("split job enqueued", "job_id", job.ID, "document_id", documentID)
	o.notify()
	return job, nil
}

// JobStatus resolves a job into the caller-facing reporting shape.
func (o *Orchestrator) JobStatus(ctx context.Context, jobID string) (*JobView, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	view := NewJobView(job)
	return &view, nil
}

func (o *Orchestrator) checkIdle(ctx context.Context, documentID string) error {
	active, err := o.store.HasActiveJob(ctx, documentID)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: %s", ErrJobActive, documentID)
	}
	return nil
}

func (o *Orchestrator) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
