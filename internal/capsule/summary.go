package capsule

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// NoDescription is shown for capsules that do not describe themselves.
const NoDescription = "(No description)"

var markdown = goldmark.New()

// Summary returns the first paragraph (or heading) of a markdown
// description as a single line of plain text. Inline markup is dropped and
// soft line breaks become spaces.
func Summary(description string) string {
	source := []byte(strings.TrimSpace(description))
	if len(source) == 0 {
		return ""
	}

	doc := markdown.Parser().Parse(text.NewReader(source))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading:
			if s := plainText(n, source); s != "" {
				return s
			}
		}
	}
	return ""
}

// SummaryOrDefault is Summary with NoDescription for empty descriptions.
func SummaryOrDefault(description string) string {
	if s := Summary(description); s != "" {
		return s
	}
	return NoDescription
}

func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
