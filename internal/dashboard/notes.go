package dashboard

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderNotes renders month notes written in Markdown to HTML. Raw HTML in
// the notes is dropped and only safe link schemes become links. Blank notes
// render to "".
func RenderNotes(notes string) string {
	if strings.TrimSpace(notes) == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.HardLineBreak)
	doc := p.Parse([]byte(notes))
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.Safelink | html.HrefTargetBlank,
	})
	return strings.TrimSpace(string(markdown.Render(doc, renderer)))
}
