package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdownRendersFormatting(t *testing.T) {
	m := NewMarkdown()
	out := m.HTML("**urgent**: register `12` is down")
	assert.Contains(t, out, "<strong>urgent</strong>")
	assert.Contains(t, out, "<code>12</code>")
}

func TestMarkdownStripsScripts(t *testing.T) {
	m := NewMarkdown()
	out := m.HTML("hello <script>alert(1)</script> [link](javascript:alert(1))")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "hello")
}

func TestMarkdownEmpty(t *testing.T) {
	assert.Equal(t, "", NewMarkdown().HTML("   "))
}
