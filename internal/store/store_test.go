package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "readleaf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestDocument(t *testing.T, s *Store) *Document {
	t.Helper()
	doc := &Document{
		ID:     uuid.New().String(),
		Title:  "Test Book",
		Status: DocumentProcessing,
		Tags:   []string{"fiction", "test"},
	}
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	return doc
}

func TestOpen_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readleaf.db")

	s, err := Open(path)
	require.NoError(t, err)
	doc := newTestDocument(t, s)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
}

func TestDocument_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lexile := 720
	doc := &Document{
		ID:             uuid.New().String(),
		Title:          "The River Journey",
		Author:         "A. Wright",
		Description:    "A boy travels downriver.",
		Category:       "fiction",
		Tags:           []string{"adventure", "rivers"},
		OriginalLexile: &lexile,
		RecommendedAge: "9-12",
		Status:         DocumentProcessing,
	}
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Author, got.Author)
	assert.Equal(t, []string{"adventure", "rivers"}, got.Tags)
	require.NotNil(t, got.OriginalLexile)
	assert.Equal(t, 720, *got.OriginalLexile)
	assert.Equal(t, DocumentProcessing, got.Status)
	assert.Nil(t, got.PublishedAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDocument_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocument_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	_, err := s.CreateChapters(ctx, doc.ID, []ChapterInput{
		{Title: "One", Content: "content", SequenceNumber: 1},
	}, "ai", false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.CountChapters(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "chapters must cascade with the document")

	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestDocument_UpdateInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	lexile := 540
	require.NoError(t, s.UpdateDocumentInfo(ctx, doc.ID, DocumentInfo{
		Title:          "Refined Title",
		Author:         "New Author",
		Description:    "desc",
		Category:       "non-fiction",
		OriginalLexile: &lexile,
		RecommendedAge: "6-8",
		Tags:           []string{"updated"},
	}))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Refined Title", got.Title)
	assert.Equal(t, "New Author", got.Author)
	assert.Equal(t, []string{"updated"}, got.Tags)
	require.NotNil(t, got.OriginalLexile)
	assert.Equal(t, 540, *got.OriginalLexile)
}

func TestDocument_SourceTextRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	text, err := s.SourceText(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, text)

	require.NoError(t, s.SetSourceText(ctx, doc.ID, "# Chapter One\nbody"))

	text, err = s.SourceText(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Chapter One\nbody", text)
}

func TestCreateChapters_PublishesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	n, err := s.CreateChapters(ctx, doc.ID, []ChapterInput{
		{Title: "One", Content: "First chapter. It has two sentences.", SequenceNumber: 1},
		{Title: "Two", Content: "Second chapter text.", SequenceNumber: 2, ProcessingLog: `{"splitMethod":"markdown-heading"}`},
	}, "ai", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocumentPublished, got.Status)
	require.NotNil(t, got.PublishedAt)

	chapters, err := s.ListChapters(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, 1, chapters[0].SequenceNumber)
	assert.Equal(t, "One", chapters[0].Title)
	assert.Equal(t, 6, chapters[0].WordCount)

	detail, err := s.GetChapter(ctx, doc.ID, chapters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "First chapter. It has two sentences.", detail.Content)
	assert.Equal(t, ContentVersionOriginal, detail.Version)
	assert.Equal(t, 2, detail.SentenceCount)
	assert.Equal(t, "ai", detail.ProcessedBy)
}

func TestCreateChapters_AtomicOnConstraintViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	// Duplicate sequence numbers violate the unique constraint on the
	// second insert; the first chapter and the publish must roll back.
	_, err := s.CreateChapters(ctx, doc.ID, []ChapterInput{
		{Title: "One", Content: "a", SequenceNumber: 1},
		{Title: "Dup", Content: "b", SequenceNumber: 1},
	}, "ai", false)
	require.Error(t, err)

	n, err := s.CountChapters(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "partial chapter sets must never be visible")

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocumentProcessing, got.Status)
	assert.Nil(t, got.PublishedAt)
}

func TestCreateChapters_ReplaceRemovesOldSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	_, err := s.CreateChapters(ctx, doc.ID, []ChapterInput{
		{Title: "Old", Content: "old content", SequenceNumber: 1},
	}, "ai", false)
	require.NoError(t, err)

	_, err = s.CreateChapters(ctx, doc.ID, []ChapterInput{
		{Title: "New One", Content: "a", SequenceNumber: 1},
		{Title: "New Two", Content: "b", SequenceNumber: 2},
	}, "ai", true)
	require.NoError(t, err)

	chapters, err := s.ListChapters(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "New One", chapters[0].Title)
	assert.Equal(t, "New Two", chapters[1].Title)
}

func TestCreateChapters_EmptySetRejected(t *testing.T) {
	s := newTestStore(t)
	doc := newTestDocument(t, s)

	_, err := s.CreateChapters(context.Background(), doc.ID, nil, "ai", false)
	require.Error(t, err)
}

func TestJob_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	job := &Job{
		ID:          uuid.New().String(),
		Type:        JobIngest,
		DocumentID:  doc.ID,
		InputPath:   "/tmp/in.pdf",
		Title:       "Test Book",
		MaxAttempts: 3,
	}
	require.NoError(t, s.EnqueueJob(ctx, job))
	assert.Equal(t, JobQueued, job.Status)

	claimed, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, JobActive, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	// Queue is now empty.
	next, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 40))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 10))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress, "progress must be monotonic")

	require.NoError(t, s.CompleteJob(ctx, job.ID))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.True(t, got.Status.Terminal())
}

func TestJob_RequeueDelaysNextClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	job := &Job{ID: uuid.New().String(), Type: JobIngest, DocumentID: doc.ID, MaxAttempts: 3}
	require.NoError(t, s.EnqueueJob(ctx, job))

	claimed, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, s.RequeueJob(ctx, job.ID, "transient failure", time.Now().Add(time.Hour)))

	// Not due yet.
	next, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, s.RequeueJob(ctx, job.ID, "transient failure", time.Now().Add(-time.Second)))

	next, err = s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Attempts)
	assert.Equal(t, "transient failure", next.ErrorMessage)
}

func TestJob_FailRecordsReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	job := &Job{ID: uuid.New().String(), Type: JobIngest, DocumentID: doc.ID}
	require.NoError(t, s.EnqueueJob(ctx, job))
	require.NoError(t, s.FailJob(ctx, job.ID, "conversion failed: bad pdf"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, "conversion failed: bad pdf", got.ErrorMessage)
}

func TestJob_ClaimOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docA := newTestDocument(t, s)
	docB := newTestDocument(t, s)

	first := &Job{ID: uuid.New().String(), Type: JobIngest, DocumentID: docA.ID}
	require.NoError(t, s.EnqueueJob(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := &Job{ID: uuid.New().String(), Type: JobIngest, DocumentID: docB.ID}
	require.NoError(t, s.EnqueueJob(ctx, second))

	claimed, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
}

func TestHasActiveJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := newTestDocument(t, s)

	active, err := s.HasActiveJob(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, active)

	job := &Job{ID: uuid.New().String(), Type: JobIngest, DocumentID: doc.ID}
	require.NoError(t, s.EnqueueJob(ctx, job))

	active, err = s.HasActiveJob(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.CompleteJob(ctx, job.ID))

	active, err = s.HasActiveJob(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCountWordsAndSentences(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 4, CountWords("one two  three\nfour"))

	assert.Equal(t, 0, CountSentences("   "))
	assert.Equal(t, 2, CountSentences("First sentence. Second one!"))
	assert.Equal(t, 1, CountSentences("No terminator here"))
	assert.Equal(t, 1, CountSentences("Trailing punctuation only..."))
}
