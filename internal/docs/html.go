package docs

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// HTMLConverter turns crawled HTML pages into Markdown before chunking.
type HTMLConverter struct {
	conv *converter.Converter
}

// NewHTMLConverter creates a converter with CommonMark and table support.
func NewHTMLConverter() *HTMLConverter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &HTMLConverter{conv: conv}
}

// Convert transforms HTML into Markdown. Blank input yields blank output.
func (c *HTMLConverter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	return c.conv.ConvertString(html)
}
