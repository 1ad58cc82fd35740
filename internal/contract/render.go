package contract

import (
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	xhtml "golang.org/x/net/html"
)

// Prefill replaces every placeholder with a highlighted span holding the
// provided value, or the token itself when no non-empty value is given.
func Prefill(content string, values map[string]string) string {
	return PlaceholderRe.ReplaceAllStringFunc(content, func(token string) string {
		shown := token
		if v := strings.TrimSpace(values[token]); v != "" {
			shown = html.EscapeString(v)
		}
		return `<span class="placeholder-highlight">` + shown + `</span>`
	})
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders content as Markdown for terminal previews.
func Markdown(content string) (string, error) {
	return mdConverter.ConvertString(content)
}

// PlainText returns the visible text of content with single spaces between
// text nodes. Script and style bodies are skipped.
func PlainText(content string) string {
	doc, err := xhtml.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}
	var b strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == xhtml.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
