package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateChapters commits an ordered chapter set and the parent document's
// transition to published in a single transaction. Either every chapter and
// its "original" content version becomes visible, or none do. When replace
// is set, existing chapters for the document are removed first (chapter
// regeneration).
func (s *Store) CreateChapters(ctx context.Context, documentID string, chapters []ChapterInput, processedBy string, replace bool) (int, error) {
	if len(chapters) == 0 {
		return 0, errors.New("no chapters to create")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin chapters tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chapters WHERE document_id = ?`, documentID); err != nil {
			return 0, fmt.Errorf("delete existing chapters: %w", err)
		}
	}

	now := time.Now().UTC()
	timestamp := formatTime(now)

	for _, ch := range chapters {
		chapterID := uuid.New().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chapters (id, document_id, sequence_number, title, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chapterID, documentID, ch.SequenceNumber, ch.Title, "published", timestamp, timestamp,
		); err != nil {
			return 0, fmt.Errorf("insert chapter %d: %w", ch.SequenceNumber, err)
		}

		log := ch.ProcessingLog
		if log == "" {
			log = "{}"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chapter_contents (
                id, chapter_id, version, content, word_count, sentence_count,
                processed_by, processed_at, processing_log
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), chapterID, ContentVersionOriginal, ch.Content,
			CountWords(ch.Content), CountSentences(ch.Content),
			processedBy, timestamp, log,
		); err != nil {
			return 0, fmt.Errorf("insert chapter %d content: %w", ch.SequenceNumber, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = ?, published_at = ?, updated_at = ? WHERE id = ?`,
		string(DocumentPublished), timestamp, timestamp, documentID,
	); err != nil {
		return 0, fmt.Errorf("publish document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit chapters: %w", err)
	}
	return len(chapters), nil
}

// CountChapters returns the number of chapters for a document.
func (s *Store) CountChapters(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chapters WHERE document_id = ?`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chapters: %w", err)
	}
	return n, nil
}

// ListChapters returns chapter summaries in sequence order, joined with the
// original content version's word count.
func (s *Store) ListChapters(ctx context.Context, documentID string) ([]ChapterSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.sequence_number, c.title, c.status,
                COALESCE(cc.word_count, 0), c.created_at, c.updated_at
         FROM chapters c
         LEFT JOIN chapter_contents cc ON cc.chapter_id = c.id AND cc.version = ?
         WHERE c.document_id = ?
         ORDER BY c.sequence_number ASC`,
		ContentVersionOriginal, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var out []ChapterSummary
	for rows.Next() {
		var (
			ch                   ChapterSummary
			createdAt, updatedAt string
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.SequenceNumber, &ch.Title,
			&ch.Status, &ch.WordCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		ch.CreatedAt = parseTime(createdAt)
		ch.UpdatedAt = parseTime(updatedAt)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// GetChapter fetches one chapter with its original content version.
func (s *Store) GetChapter(ctx context.Context, documentID, chapterID string) (*ChapterDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.document_id, c.sequence_number, c.title, c.status,
                c.created_at, c.updated_at,
                cc.version, cc.content, cc.word_count, cc.sentence_count,
                cc.processed_by, cc.processed_at
         FROM chapters c
         JOIN chapter_contents cc ON cc.chapter_id = c.id AND cc.version = ?
         WHERE c.id = ? AND c.document_id = ?`,
		ContentVersionOriginal, chapterID, documentID)

	var (
		ch                   ChapterDetail
		createdAt, updatedAt string
		processedAt          string
	)
	err := row.Scan(&ch.ID, &ch.DocumentID, &ch.SequenceNumber, &ch.Title, &ch.Status,
		&createdAt, &updatedAt,
		&ch.Version, &ch.Content, &ch.WordCount, &ch.SentenceCount,
		&ch.ProcessedBy, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	ch.CreatedAt = parseTime(createdAt)
	ch.UpdatedAt = parseTime(updatedAt)
	ch.ProcessedAt = parseTime(processedAt)
	return &ch, nil
}

var sentenceDelim = regexp.MustCompile(`[.!?]+`)

// CountWords counts whitespace-delimited word tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountSentences counts punctuation-delimited sentences.
func CountSentences(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := 0
	for _, part := range sentenceDelim.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}
