package report

import (
	"bytes"

	"reportd/pkg/errors"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

const (
	htmlHead = "<!doctype html><html><meta charset='utf-8'><body>"
	htmlTail = "</body></html>"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.DefinitionList),
	goldmark.WithParserOptions(parser.WithAutoHeadingID(), parser.WithAttribute()),
	// templates embed raw <img> tags with data URIs
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// ToHTML converts markdown to a complete standalone HTML document.
func ToHTML(src string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(src), &body); err != nil {
		return "", errors.Wrap(err, "convert markdown")
	}
	return htmlHead + body.String() + htmlTail, nil
}
