// Package bookinfo infers book metadata (title, author, category, tags)
// from a sample of the converted text. Extraction is best-effort: any
// failure degrades to defaults derived from the fallback title, never an
// error to the caller.
package bookinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/readleaf/readleaf/internal/textgen"
)

// sampleLimit bounds how much text is sent for analysis, to bound cost.
const sampleLimit = 1000

// BookInfo is the normalized metadata record.
type BookInfo struct {
	Title          string
	Author         string
	Description    string
	Category       string
	OriginalLexile *int
	RecommendedAge string
	Tags           []string
}

const extractionPrompt = `You are a book metadata specialist. Analyze the following text sample and extract the book's basic information.

Text sample: %q

Respond with a plain JSON object (no markdown fences):
{
  "title": "book title",
  "author": "author name if present",
  "description": "a 50-100 word summary",
  "category": "one of: fiction, non-fiction, science, biography, fantasy, history, other",
  "originalLexile": lexile measure as a number, or null,
  "recommendedAge": "an age range such as 6-8 or 9-12",
  "tags": ["tag1", "tag2", "tag3"]
}

If something is unclear, make a reasonable guess.`

// Extractor turns text samples into BookInfo values.
type Extractor struct {
	gen textgen.Generator
	log *slog.Logger
}

func NewExtractor(gen textgen.Generator, log *slog.Logger) *Extractor {
	return &Extractor{gen: gen, log: log}
}

// Extract never fails: on any generation or parse problem it logs a warning
// and returns Default(fallbackTitle).
func (e *Extractor) Extract(ctx context.Context, text, fallbackTitle string) BookInfo {
	sample := PlainSample(text, sampleLimit)
	prompt := fmt.Sprintf(extractionPrompt, sample)

	raw, err := e.gen.GenerateText(ctx, prompt, textgen.Options{
		MaxTokens:   800,
		Temperature: 0.3,
	})
	if err != nil {
		e.log.Warn("book info extraction failed, using defaults",
			"fallback_title", fallbackTitle, "error", err)
		return Default(fallbackTitle)
	}

	info, err := parseResponse(raw, fallbackTitle)
	if err != nil {
		e.log.Warn("book info response unparseable, using defaults",
			"fallback_title", fallbackTitle, "error", err)
		return Default(fallbackTitle)
	}
	return info
}

// Default is the safe metadata used when extraction degrades.
func Default(fallbackTitle string) BookInfo {
	return BookInfo{
		Title:       fallbackTitle,
		Author:      "Unknown author",
		Description: "No description available",
		Category:    "uncategorized",
		Tags:        []string{"graded-reading"},
	}
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// parseResponse validates the model output into a typed BookInfo. Nothing
// untyped flows past this boundary.
func parseResponse(response, fallbackTitle string) (BookInfo, error) {
	jsonText := stripCodeBlock(response)

	var raw struct {
		Title          string   `json:"title"`
		Author         string   `json:"author"`
		Description    string   `json:"description"`
		Category       string   `json:"category"`
		OriginalLexile *float64 `json:"originalLexile"`
		RecommendedAge string   `json:"recommendedAge"`
		Tags           any      `json:"tags"`
	}
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return BookInfo{}, fmt.Errorf("parse book info json: %w", err)
	}

	info := Default(fallbackTitle)
	if strings.TrimSpace(raw.Title) != "" {
		info.Title = strings.TrimSpace(raw.Title)
	}
	if strings.TrimSpace(raw.Author) != "" {
		info.Author = strings.TrimSpace(raw.Author)
	}
	if strings.TrimSpace(raw.Description) != "" {
		info.Description = strings.TrimSpace(raw.Description)
	}
	if strings.TrimSpace(raw.Category) != "" {
		info.Category = strings.TrimSpace(raw.Category)
	}
	if raw.OriginalLexile != nil {
		v := int(*raw.OriginalLexile)
		info.OriginalLexile = &v
	}
	if strings.TrimSpace(raw.RecommendedAge) != "" {
		info.RecommendedAge = strings.TrimSpace(raw.RecommendedAge)
	}
	if tags := normalizeTags(raw.Tags); len(tags) > 0 {
		info.Tags = tags
	}
	return info, nil
}

// normalizeTags coerces whatever shape the model used into a string list.
func normalizeTags(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
