// Package segment splits converted document text into ordered chapters on
// markdown heading markers.
package segment

import "strings"

// DefaultChapterTitle is used when the text contains no heading markers.
const DefaultChapterTitle = "Chapter 1"

// Chapter is one ordered content unit of a document.
type Chapter struct {
	Title          string
	Content        string
	SequenceNumber int
}

// Split scans text line by line; a line starting with "# " opens a new
// chapter and closes the previous one. The heading line itself stays in the
// chapter content, and body lines keep their original breaks. When no
// heading is found the whole text becomes one chapter, so documents without
// conventional heading structure still ingest. Never returns an empty slice.
func Split(text string) []Chapter {
	var (
		chapters []Chapter
		current  *Chapter
		content  strings.Builder
		seq      = 1
	)

	flush := func() {
		if current != nil {
			current.Content = content.String()
			chapters = append(chapters, *current)
			content.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			flush()
			current = &Chapter{
				Title:          strings.TrimSpace(trimmed[2:]),
				SequenceNumber: seq,
			}
			seq++
			content.WriteString(trimmed)
			content.WriteByte('\n')
			continue
		}
		if current != nil {
			content.WriteString(line)
			content.WriteByte('\n')
		}
	}
	flush()

	if len(chapters) == 0 {
		return []Chapter{{
			Title:          DefaultChapterTitle,
			Content:        text,
			SequenceNumber: 1,
		}}
	}
	return chapters
}
