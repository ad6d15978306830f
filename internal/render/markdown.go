package render

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown turns reply bodies into HTML that is safe to embed. Replies are
// stored raw; rendering happens on read.
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdown builds a renderer with GitHub-flavoured extensions. Both the
// goldmark instance and the policy are safe for concurrent use.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// HTML renders source and strips anything the UGC policy does not allow.
// Unparseable input falls back to escaped plain text.
func (m *Markdown) HTML(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return m.policy.Sanitize("<p>" + bluemonday.StrictPolicy().Sanitize(source) + "</p>")
	}
	return strings.TrimSpace(m.policy.Sanitize(buf.String()))
}
