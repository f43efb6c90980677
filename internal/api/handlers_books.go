package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/readleaf/readleaf/internal/pipeline"
	"github.com/readleaf/readleaf/internal/store"
)

// handleUploadBook accepts a multipart PDF upload, creates the book record,
// saves the file, and enqueues the ingestion job. Returns 202 immediately;
// processing happens out of band.
func (s *Server) handleUploadBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		jsonError(w, "title is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	doc := &store.Document{
		ID:       uuid.New().String(),
		Title:    title,
		Author:   strings.TrimSpace(r.FormValue("author")),
		Category: strings.TrimSpace(r.FormValue("category")),
		Status:   store.DocumentProcessing,
	}
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		s.log.Error("create document failed", "error", err)
		jsonError(w, "failed to create book", http.StatusInternalServerError)
		return
	}

	pdfPath, err := s.saveUpload(file, doc.ID)
	if err != nil {
		s.removeDocument(r.Context(), doc.ID)
		if errors.Is(err, errUploadTooLarge) {
			jsonError(w, fmt.Sprintf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes),
				http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Error("save upload failed", "document_id", doc.ID, "error", err)
		jsonError(w, "failed to store uploaded file", http.StatusInternalServerError)
		return
	}

	job, err := s.orchestrator.SubmitIngest(r.Context(), doc.ID, pdfPath, title)
	if err != nil {
		os.Remove(pdfPath)
		s.removeDocument(r.Context(), doc.ID)
		switch {
		case errors.Is(err, pipeline.ErrJobActive), errors.Is(err, pipeline.ErrChaptersExist):
			jsonError(w, err.Error(), http.StatusConflict)
		default:
			s.log.Error("submit ingest failed", "document_id", doc.ID, "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	jsonResponse(w, http.StatusAccepted, map[string]any{
		"book_id":  doc.ID,
		"job_id":   job.ID,
		"status":   job.Status,
		"message":  "book uploaded, PDF processing started in the background",
		"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

var errUploadTooLarge = errors.New("uploaded file exceeds the size limit")

// saveUpload writes the PDF to the upload directory. Reading one byte past
// the limit distinguishes an oversized file from one that is exactly at it;
// nothing truncated is ever left on disk.
func (s *Server) saveUpload(file io.Reader, documentID string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure upload dir: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, documentID+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if n > s.cfg.MaxUploadBytes {
		os.Remove(path)
		return "", errUploadTooLarge
	}
	return path, nil
}

// removeDocument rolls back a document row created for an upload that never
// became a job. Best effort.
func (s *Server) removeDocument(ctx context.Context, documentID string) {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		s.log.Error("cleanup document failed", "document_id", documentID, "error", err)
	}
}

// handleSplitBook enqueues chapter regeneration for a book that already has
// extracted text. `force=true` replaces an existing chapter set.
func (s *Server) handleSplitBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	force := r.URL.Query().Get("force") == "true"

	if _, err := s.store.GetDocument(r.Context(), bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "book not found", http.StatusNotFound)
			return
		}
		s.log.Error("get document failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	job, err := s.orchestrator.SubmitSplit(r.Context(), bookID, force)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrChaptersExist):
			jsonError(w, "book already has chapters; pass force=true to regenerate", http.StatusConflict)
		case errors.Is(err, pipeline.ErrJobActive):
			jsonError(w, "book already has a job in progress", http.StatusConflict)
		case errors.Is(err, pipeline.ErrNoSourceText):
			jsonError(w, "book has no extracted text to split", http.StatusUnprocessableEntity)
		default:
			s.log.Error("submit split failed", "error", err)
			jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	jsonResponse(w, http.StatusAccepted, map[string]any{
		"book_id":  bookID,
		"job_id":   job.ID,
		"status":   job.Status,
		"message":  "chapter regeneration started",
		"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	doc, err := s.store.GetDocument(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "book not found", http.StatusNotFound)
			return
		}
		s.log.Error("get document failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, doc)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	if _, err := s.store.GetDocument(r.Context(), bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "book not found", http.StatusNotFound)
			return
		}
		s.log.Error("get document failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	chapters, err := s.store.ListChapters(r.Context(), bookID)
	if err != nil {
		s.log.Error("list chapters failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if chapters == nil {
		chapters = []store.ChapterSummary{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"chapters": chapters,
		"total":    len(chapters),
	})
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	chapterID := chi.URLParam(r, "chapterID")

	chapter, err := s.store.GetChapter(r.Context(), bookID, chapterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "chapter not found", http.StatusNotFound)
			return
		}
		s.log.Error("get chapter failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, chapter)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
