package store

import "time"

// DocumentStatus is the lifecycle state of a book record.
type DocumentStatus string

const (
	DocumentDraft      DocumentStatus = "draft"
	DocumentProcessing DocumentStatus = "processing"
	DocumentPublished  DocumentStatus = "published"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is an ingested book, parent of chapters.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Author         string         `json:"author"`
	Description    string         `json:"description"`
	Category       string         `json:"category"`
	Tags           []string       `json:"tags"`
	OriginalLexile *int           `json:"original_lexile,omitempty"`
	RecommendedAge string         `json:"recommended_age"`
	Status         DocumentStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
}

// DocumentInfo carries the metadata fields the pipeline updates after
// extraction. A nil OriginalLexile leaves the column NULL.
type DocumentInfo struct {
	Title          string
	Author         string
	Description    string
	Category       string
	OriginalLexile *int
	RecommendedAge string
	Tags           []string
}

// ChapterInput is one segmented chapter ready for the transactional commit.
// ProcessingLog is a JSON blob (quality result, split method, timestamps).
type ChapterInput struct {
	Title          string
	Content        string
	SequenceNumber int
	ProcessingLog  string
}

// ChapterSummary is the list-view shape of a persisted chapter, joined with
// its "original" content version's word count.
type ChapterSummary struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	SequenceNumber int       `json:"sequence_number"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	WordCount      int       `json:"word_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ChapterDetail adds the original content version to a summary.
type ChapterDetail struct {
	ChapterSummary
	Content       string    `json:"content"`
	Version       string    `json:"version"`
	SentenceCount int       `json:"sentence_count"`
	ProcessedBy   string    `json:"processed_by"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// JobType selects which pipeline a job runs.
type JobType string

const (
	JobIngest JobType = "ingest"
	JobSplit  JobType = "split-chapters"
)

// JobStatus is the queue state machine: queued -> active -> completed|failed.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether a status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a durable queue row targeting one document.
type Job struct {
	ID           string    `json:"id"`
	Type         JobType   `json:"type"`
	DocumentID   string    `json:"document_id"`
	InputPath    string    `json:"-"`
	Title        string    `json:"title"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	Attempts     int       `json:"attempts"`
	MaxAttempts  int       `json:"max_attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	NextRunAt    time.Time `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ContentVersionOriginal is the version tag the pipeline writes. Simplified
// variants are created by the difficulty-rewriting tooling, not here.
const ContentVersionOriginal = "original"
