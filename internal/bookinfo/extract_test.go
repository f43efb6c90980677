package bookinfo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readleaf/readleaf/internal/textgen"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) GenerateText(_ context.Context, prompt string, _ textgen.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtract_ParsesWellFormedResponse(t *testing.T) {
	gen := &fakeGenerator{response: `{
        "title": "The River Journey",
        "author": "A. Wright",
        "description": "A boy travels downriver.",
        "category": "fiction",
        "originalLexile": 620,
        "recommendedAge": "9-12",
        "tags": ["adventure", "rivers"]
    }`}
	ex := NewExtractor(gen, discardLogger())

	info := ex.Extract(context.Background(), "# The River Journey\nsome text", "fallback")

	assert.Equal(t, "The River Journey", info.Title)
	assert.Equal(t, "A. Wright", info.Author)
	assert.Equal(t, "fiction", info.Category)
	require.NotNil(t, info.OriginalLexile)
	assert.Equal(t, 620, *info.OriginalLexile)
	assert.Equal(t, "9-12", info.RecommendedAge)
	assert.Equal(t, []string{"adventure", "rivers"}, info.Tags)
}

func TestExtract_StripsCodeFences(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n{\"title\": \"Fenced\", \"tags\": []}\n```"}
	ex := NewExtractor(gen, discardLogger())

	info := ex.Extract(context.Background(), "text", "fallback")
	assert.Equal(t, "Fenced", info.Title)
}

func TestExtract_MalformedResponseFallsBackToDefaults(t *testing.T) {
	gen := &fakeGenerator{response: "I could not find any metadata, sorry!"}
	ex := NewExtractor(gen, discardLogger())

	info := ex.Extract(context.Background(), "text", "Original Upload Title")

	assert.Equal(t, "Original Upload Title", info.Title)
	assert.Equal(t, "Unknown author", info.Author)
	assert.Equal(t, []string{"graded-reading"}, info.Tags)
	assert.Nil(t, info.OriginalLexile)
}

func TestExtract_GeneratorErrorFallsBackToDefaults(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("service unavailable")}
	ex := NewExtractor(gen, discardLogger())

	info := ex.Extract(context.Background(), "text", "My Book")
	assert.Equal(t, Default("My Book"), info)
}

func TestExtract_BoundsTheSample(t *testing.T) {
	big := make([]byte, 50_000)
	for i := range big {
		big[i] = 'a'
	}
	gen := &fakeGenerator{response: `{}`}
	ex := NewExtractor(gen, discardLogger())

	ex.Extract(context.Background(), string(big), "fallback")

	require.Len(t, gen.prompts, 1)
	assert.Less(t, len(gen.prompts[0]), 5_000, "prompt must embed only a bounded sample")
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"string list", []any{"a", "b", " c "}, []string{"a", "b", "c"}},
		{"comma string", "one, two,three", []string{"one", "two", "three"}},
		{"mixed list skips non-strings", []any{"a", 7, "b"}, []string{"a", "b"}},
		{"nil", nil, nil},
		{"number", 42.0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTags(tt.in))
		})
	}
}

func TestPlainSample_StripsMarkdown(t *testing.T) {
	md := "# Heading\n\nSome *emphasised* body text.\n\n- item one\n- item two\n"
	sample := PlainSample(md, 1000)

	assert.Contains(t, sample, "Heading")
	assert.Contains(t, sample, "emphasised")
	assert.Contains(t, sample, "item one")
	assert.NotContains(t, sample, "#")
	assert.NotContains(t, sample, "*")
}

func TestPlainSample_RespectsLimit(t *testing.T) {
	sample := PlainSample(strings.Repeat("word ", 2000), 100)
	assert.LessOrEqual(t, len([]rune(sample)), 100)
}
