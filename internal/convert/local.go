package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// convertLocal extracts plain text straight from the PDF when no remote
// converter is configured. Output quality is well below the hosted service
// (no heading reconstruction), so the segmenter usually falls back to a
// single chapter. Opt-in via CONVERT_LOCAL_FALLBACK.
func (g *Gateway) convertLocal(pdfPath string, opts Options) (*Result, error) {
	text, err := extractPDFText(pdfPath)
	if err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("local pdf extraction: %s", err)}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &Failure{Reason: "local pdf extraction produced no text"}
	}

	workDir := g.WorkDir(opts.DocumentID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("create working directory: %s", err)}
	}
	mdPath := filepath.Join(workDir, "output.md")
	if err := os.WriteFile(mdPath, []byte(text), 0o644); err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("write markdown artifact: %s", err)}
	}

	return &Result{Markdown: text, MarkdownPath: mdPath}, nil
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}
