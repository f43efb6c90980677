package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const documentColumns = `id, title, author, description, category, tags,
    original_lexile, recommended_age, status, created_at, updated_at, published_at`

// CreateDocument inserts a new book record. The caller assigns the ID.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return errors.New("document id is empty")
	}
	if doc.Status == "" {
		doc.Status = DocumentDraft
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	tags, err := marshalTags(doc.Tags)
	if err != nil {
		return err
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO documents (
            id, title, author, description, category, tags,
            original_lexile, recommended_age, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Author, doc.Description, doc.Category, tags,
		nullableInt(doc.OriginalLexile), doc.RecommendedAge, string(doc.Status),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument fetches a book by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// SetDocumentStatus moves a book to the given lifecycle state.
func (s *Store) SetDocumentStatus(ctx context.Context, id string, status DocumentStatus) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a book record; chapters and their contents cascade.
// Used to roll back a document whose upload never became a job.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentInfo applies extracted book metadata mid-pipeline.
func (s *Store) UpdateDocumentInfo(ctx context.Context, id string, info DocumentInfo) error {
	tags, err := marshalTags(info.Tags)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE documents SET
            title = ?, author = ?, description = ?, category = ?,
            original_lexile = ?, recommended_age = ?, tags = ?, updated_at = ?
         WHERE id = ?`,
		info.Title, info.Author, info.Description, info.Category,
		nullableInt(info.OriginalLexile), info.RecommendedAge, tags,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update document info: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSourceText stores the converted document text so chapters can later be
// regenerated without re-running conversion.
func (s *Store) SetSourceText(ctx context.Context, id, text string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE documents SET source_text = ?, updated_at = ? WHERE id = ?`,
		text, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set source text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SourceText returns the stored converted text, which may be empty when the
// document never passed conversion.
func (s *Store) SourceText(ctx context.Context, id string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_text FROM documents WHERE id = ?`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get source text: %w", err)
	}
	return text, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var (
		doc         Document
		tags        string
		lexile      sql.NullInt64
		status      string
		createdAt   string
		updatedAt   string
		publishedAt sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Author, &doc.Description, &doc.Category,
		&tags, &lexile, &doc.RecommendedAge, &status, &createdAt, &updatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		doc.Tags = nil
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if lexile.Valid {
		v := int(lexile.Int64)
		doc.OriginalLexile = &v
	}
	doc.Status = DocumentStatus(status)
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	if publishedAt.Valid {
		t := parseTime(publishedAt.String)
		doc.PublishedAt = &t
	}
	return &doc, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}
