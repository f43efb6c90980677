package bookinfo

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainSample renders the leading portion of a markdown document as plain
// text, up to limit runes. Markdown syntax would only waste prompt budget.
func PlainSample(markdown string, limit int) string {
	src := []byte(markdown)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Heading, *ast.Paragraph, *ast.ListItem:
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		}
		// Enough collected: a little slack so trimming still fills the limit.
		if sb.Len() > limit*4 {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	sample := strings.TrimSpace(sb.String())
	runes := []rune(sample)
	if len(runes) > limit {
		sample = string(runes[:limit])
	}
	return sample
}
