package render

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

// converter is shared across builds: the configuration never changes
// and goldmark instances are safe for concurrent Convert calls. Raw
// HTML blocks in the sources pass through unchanged.
var converter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(ghtml.WithUnsafe()),
)

// convertMarkdown renders a markdown body to an HTML fragment.
func convertMarkdown(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := converter.Convert(src, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pageTitle returns the text of the first ATX heading in a markdown
// body, skipping fenced code blocks. Without a heading the file name is
// converted to Title Case: getting-started -> Getting Started.
func pageTitle(src []byte, name string) string {
	inFence := false
	for _, line := range strings.Split(string(src), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		// A heading marker requires a space after the #s; "#hashtag" is text.
		text := strings.TrimLeft(trimmed, "#")
		if !strings.HasPrefix(text, " ") {
			continue
		}
		if title := strings.TrimSpace(text); title != "" {
			return title
		}
	}
	return titleFromName(name)
}

func titleFromName(name string) string {
	base := strings.ReplaceAll(name, "_", "-")
	parts := strings.Split(base, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, " ")
}

var markdownLinkRe = regexp.MustCompile(`\[(?P<text>[^\]]*)\]\((?P<link>[^)]+)\)`)

// rewriteMarkdownLinks maps relative links between markdown sources onto
// the files the builder emits: foo.md -> foo.html, sub/README.md ->
// sub/index.html, anchors preserved. External links, mailto and
// anchor-only links are left untouched.
func rewriteMarkdownLinks(src []byte) []byte {
	return markdownLinkRe.ReplaceAllFunc(src, func(m []byte) []byte {
		matches := markdownLinkRe.FindSubmatch(m)
		if len(matches) != 3 {
			return m
		}
		text, link := string(matches[1]), string(matches[2])
		low := strings.ToLower(link)
		if strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://") ||
			strings.HasPrefix(low, "mailto:") || strings.HasPrefix(link, "#") {
			return m
		}

		anchor := ""
		if idx := strings.IndexByte(link, '#'); idx >= 0 {
			anchor = link[idx:]
			link = link[:idx]
		}
		if !isMarkdownFile(link) {
			return m
		}
		return []byte(fmt.Sprintf("[%s](%s%s)", text, htmlPath(link), anchor))
	})
}

// htmlPath maps a slash-separated markdown source path to the page the
// builder emits for it. README and index files become the directory
// index.
func htmlPath(rel string) string {
	dir, file := path.Split(rel)
	base := strings.TrimSuffix(file, path.Ext(file))
	if strings.EqualFold(base, "README") || strings.EqualFold(base, "index") {
		return dir + "index.html"
	}
	return dir + base + ".html"
}
