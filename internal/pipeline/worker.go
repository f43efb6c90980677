package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/readleaf/readleaf/internal/bookinfo"
	"github.com/readleaf/readleaf/internal/convert"
	"github.com/readleaf/readleaf/internal/quality"
	"github.com/readleaf/readleaf/internal/segment"
	"github.com/readleaf/readleaf/internal/store"
)

// Converter is the document-conversion capability the worker drives.
type Converter interface {
	Convert(ctx context.Context, pdfPath string, opts convert.Options) (*convert.Result, error)
	WorkDir(documentID string) string
}

// Worker executes one claimed job through its pipeline stages.
type Worker struct {
	store     *store.Store
	converter Converter
	extractor *bookinfo.Extractor
	log       *slog.Logger

	retryBackoff time.Duration
}

func NewWorker(st *store.Store, conv Converter, ex *bookinfo.Extractor, log *slog.Logger, retryBackoff time.Duration) *Worker {
	return &Worker{
		store:        st,
		converter:    conv,
		extractor:    ex,
		log:          log,
		retryBackoff: retryBackoff,
	}
}

// Process runs the pipeline for a claimed job and finalizes the job row:
// completed, requeued for retry, or terminally failed with the document
// reconciled out of processing.
func (w *Worker) Process(ctx context.Context, job *store.Job) {
	log := w.log.With("job_id", job.ID, "document_id", job.DocumentID, "job_type", job.Type, "attempt", job.Attempts)
	log.Info("job started")

	var err error
	switch job.Type {
	case store.JobIngest:
		err = w.runIngest(ctx, log, job)
	case store.JobSplit:
		err = w.runSplit(ctx, log, job)
	default:
		err = permanent(fmt.Errorf("unknown job type %q", job.Type))
	}

	if err == nil {
		if cErr := w.store.CompleteJob(ctx, job.ID); cErr != nil {
			log.Error("finalize completed job failed", "error", cErr)
		}
		log.Info("job completed")
		return
	}

	if isPermanent(err) || job.Attempts >= job.MaxAttempts {
		// Reconcile the document before surfacing failure so it is never
		// left stuck in processing.
		if sErr := w.store.SetDocumentStatus(ctx, job.DocumentID, store.DocumentFailed); sErr != nil {
			log.Error("reconcile document status failed", "error", sErr)
		}
		if fErr := w.store.FailJob(ctx, job.ID, err.Error()); fErr != nil {
			log.Error("finalize failed job failed", "error", fErr)
		}
		log.Error("job failed", "error", err)
		return
	}

	delay := Backoff(w.retryBackoff, job.Attempts)
	if rErr := w.store.RequeueJob(ctx, job.ID, err.Error(), time.Now().Add(delay)); rErr != nil {
		log.Error("requeue job failed", "error", rErr)
	}
	log.Warn("job will retry", "delay", delay, "error", err)
}

// runIngest drives the full pipeline:
// convert -> segment -> extract info -> quality check -> persist.
// A retried job restarts here from conversion; there is no partial resume.
func (w *Worker) runIngest(ctx context.Context, log *slog.Logger, job *store.Job) error {
	if err := w.store.SetDocumentStatus(ctx, job.DocumentID, store.DocumentProcessing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return permanent(fmt.Errorf("document %s: %w", job.DocumentID, err))
		}
		return err
	}
	w.progress(ctx, log, job.ID, progressValidated)

	res, err := w.converter.Convert(ctx, job.InputPath, convert.Options{
		DocumentID: job.DocumentID,
		Title:      job.Title,
	})
	if err != nil {
		if errors.Is(err, convert.ErrSourceMissing) {
			return permanent(err)
		}
		// Expected conversion failures are transient at the job level.
		return err
	}
	log.Info("conversion complete", "markdown_path", res.MarkdownPath, "bytes", len(res.Markdown))
	w.progress(ctx, log, job.ID, progressConverted)

	// Keep the extracted text so chapters can be regenerated later without
	// another conversion round-trip.
	if err := w.store.SetSourceText(ctx, job.DocumentID, res.Markdown); err != nil {
		return permanent(fmt.Errorf("store source text: %w", err))
	}

	chapters := segment.Split(res.Markdown)
	log.Info("segmentation complete", "chapters", len(chapters))
	w.progress(ctx, log, job.ID, progressSegmented)

	info := w.extractor.Extract(ctx, res.Markdown, job.Title)
	if err := w.store.UpdateDocumentInfo(ctx, job.DocumentID, store.DocumentInfo{
		Title:          info.Title,
		Author:         info.Author,
		Description:    info.Description,
		Category:       info.Category,
		OriginalLexile: info.OriginalLexile,
		RecommendedAge: info.RecommendedAge,
		Tags:           info.Tags,
	}); err != nil {
		return permanent(fmt.Errorf("update document info: %w", err))
	}
	log.Info("book info extracted", "title", info.Title, "author", info.Author)
	w.progress(ctx, log, job.ID, progressEnriched)

	results := make([]quality.Result, len(chapters))
	failed := 0
	for i, ch := range chapters {
		results[i] = quality.Check(quality.Input{
			Content:      ch.Content,
			ChapterTitle: ch.Title,
			DocumentID:   job.DocumentID,
		})
		if !results[i].Passed {
			failed++
		}
	}
	if failed > 0 {
		log.Warn("quality check found issues, continuing", "failed_chapters", failed)
	}
	w.progress(ctx, log, job.ID, progressChecked)

	inputs := make([]store.ChapterInput, len(chapters))
	for i, ch := range chapters {
		inputs[i] = store.ChapterInput{
			Title:          ch.Title,
			Content:        ch.Content,
			SequenceNumber: ch.SequenceNumber,
			ProcessingLog:  processingLog(map[string]any{"qualityCheck": results[i]}),
		}
	}
	created, err := w.store.CreateChapters(ctx, job.DocumentID, inputs, "ai", false)
	if err != nil {
		return permanent(fmt.Errorf("persist chapters: %w", err))
	}
	log.Info("chapters persisted", "count", created)

	w.cleanupIngest(log, job)
	return nil
}

// runSplit regenerates chapters from the stored extracted text without
// re-running conversion.
func (w *Worker) runSplit(ctx context.Context, log *slog.Logger, job *store.Job) error {
	if err := w.store.SetDocumentStatus(ctx, job.DocumentID, store.DocumentProcessing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return permanent(fmt.Errorf("document %s: %w", job.DocumentID, err))
		}
		return err
	}
	w.progress(ctx, log, job.ID, progressValidated)

	text, err := w.store.SourceText(ctx, job.DocumentID)
	if err != nil {
		return permanent(fmt.Errorf("load source text: %w", err))
	}
	if text == "" {
		return permanent(fmt.Errorf("document %s has no extracted text to split", job.DocumentID))
	}

	chapters := segment.Split(text)
	log.Info("segmentation complete", "chapters", len(chapters))
	w.progress(ctx, log, job.ID, progressSplitReady)

	inputs := make([]store.ChapterInput, len(chapters))
	for i, ch := range chapters {
		inputs[i] = store.ChapterInput{
			Title:          ch.Title,
			Content:        ch.Content,
			SequenceNumber: ch.SequenceNumber,
			ProcessingLog:  processingLog(map[string]any{"splitMethod": "heading-scan"}),
		}
	}
	created, err := w.store.CreateChapters(ctx, job.DocumentID, inputs, "ai", true)
	if err != nil {
		return permanent(fmt.Errorf("persist chapters: %w", err))
	}
	log.Info("chapters persisted", "count", created)
	w.progress(ctx, log, job.ID, progressChecked)
	return nil
}

// cleanupIngest removes the uploaded PDF and the conversion working
// directory after a successful run. Best effort: failures are logged, never
// fatal, and files are kept while retries may still need them.
func (w *Worker) cleanupIngest(log *slog.Logger, job *store.Job) {
	if job.InputPath != "" {
		if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("cleanup uploaded pdf failed", "path", job.InputPath, "error", err)
		}
	}
	workDir := w.converter.WorkDir(job.DocumentID)
	if err := os.RemoveAll(workDir); err != nil {
		log.Warn("cleanup working directory failed", "path", workDir, "error", err)
	}
}

func (w *Worker) progress(ctx context.Context, log *slog.Logger, jobID string, pct int) {
	if err := w.store.UpdateJobProgress(ctx, jobID, pct); err != nil {
		log.Warn("update progress failed", "progress", pct, "error", err)
	}
}

func processingLog(fields map[string]any) string {
	fields["processedAt"] = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}
