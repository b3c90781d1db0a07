package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// Page describes one emitted HTML page.
type Page struct {
	Source string `json:"source"` // markdown path relative to the source root
	Output string `json:"output"` // emitted file relative to the output directory, slash-separated
	Title  string `json:"title"`
}

// Result summarizes a fallback build.
type Result struct {
	Pages  []Page `json:"pages"`
	Assets int    `json:"assets"`
}

// Builder converts a repository's markdown into a static HTML site.
type Builder struct {
	siteTitle string
}

// NewBuilder creates a Builder with a generic site title.
func NewBuilder() *Builder {
	return &Builder{siteTitle: "Documentation"}
}

// WithSiteTitle sets the site title shown in page headers and on the
// generated index, typically the repository name.
func (b *Builder) WithSiteTitle(title string) *Builder {
	if title != "" {
		b.siteTitle = title
	}
	return b
}

// Build renders repoDir's markdown sources into outputDir. It is the
// body of the synthetic render step, so failures classify as step
// errors.
func (b *Builder) Build(ctx context.Context, repoDir, outputDir string) (Result, error) {
	set, err := discoverSources(repoDir)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CategoryStep, apperrors.SeverityFatal, "nothing to render")
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CategoryStep, apperrors.SeverityFatal, "creating output directory failed")
	}

	var res Result
	for _, rel := range set.Pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := b.renderPage(set.Root, rel, outputDir)
		if err != nil {
			return res, apperrors.Wrap(err, apperrors.CategoryStep, apperrors.SeverityFatal, "page render failed").
				WithContext("page", rel)
		}
		res.Pages = append(res.Pages, page)
	}

	for _, rel := range set.Assets {
		if err := copyAsset(set.Root, rel, outputDir); err != nil {
			return res, apperrors.Wrap(err, apperrors.CategoryStep, apperrors.SeverityFatal, "asset copy failed").
				WithContext("asset", rel)
		}
	}
	res.Assets = len(set.Assets)

	if !hasRootIndex(res.Pages) {
		if err := b.writeIndex(outputDir, res.Pages); err != nil {
			return res, apperrors.Wrap(err, apperrors.CategoryStep, apperrors.SeverityFatal, "index page failed")
		}
	}

	slog.Info("Fallback site rendered",
		logfields.Path(outputDir),
		slog.Int("pages", len(res.Pages)),
		slog.Int("assets", res.Assets))
	return res, nil
}

func (b *Builder) renderPage(root, rel, outputDir string) (Page, error) {
	src, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		return Page{}, err
	}

	relSlash := filepath.ToSlash(rel)
	name := strings.TrimSuffix(path.Base(relSlash), path.Ext(relSlash))
	title := pageTitle(src, name)

	body, err := convertMarkdown(rewriteMarkdownLinks(src))
	if err != nil {
		return Page{}, fmt.Errorf("converting %s: %w", rel, err)
	}

	outRel := htmlPath(relSlash)
	outPath := filepath.Join(outputDir, filepath.FromSlash(outRel))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return Page{}, err
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, pageData{
		SiteTitle: b.siteTitle,
		Title:     title,
		Content:   template.HTML(body),
		RootPath:  rootPrefix(outRel),
	})
	if err != nil {
		return Page{}, err
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return Page{}, err
	}

	slog.Debug("Rendered page", logfields.Path(outRel), slog.String("title", title))
	return Page{Source: relSlash, Output: outRel, Title: title}, nil
}

func (b *Builder) writeIndex(outputDir string, pages []Page) error {
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Output < sorted[j].Output })

	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexData{
		SiteTitle: b.siteTitle,
		Pages:     sorted,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "index.html"), buf.Bytes(), 0o644)
}

func copyAsset(root, rel, outputDir string) error {
	in, err := os.Open(filepath.Join(root, rel))
	if err != nil {
		return err
	}
	defer in.Close()

	dstPath := filepath.Join(outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func hasRootIndex(pages []Page) bool {
	for _, p := range pages {
		if p.Output == "index.html" {
			return true
		}
	}
	return false
}

// rootPrefix returns the ../ chain that leads from a page back to the
// output root, so nested pages can link the index.
func rootPrefix(outRel string) string {
	return strings.Repeat("../", strings.Count(outRel, "/"))
}

type pageData struct {
	SiteTitle string
	Title     string
	Content   template.HTML
	RootPath  string
}

type indexData struct {
	SiteTitle string
	Pages     []Page
}

const siteStyle = `body{margin:2rem auto;max-width:48rem;padding:0 1rem;font-family:system-ui,sans-serif;line-height:1.6;color:#222}
pre{background:#f6f8fa;padding:.8rem;overflow-x:auto}
code{font-family:ui-monospace,monospace}
table{border-collapse:collapse}
td,th{border:1px solid #ccc;padding:.3rem .6rem}
img{max-width:100%}
a{color:#0969da}`

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - {{.SiteTitle}}</title>
<style>` + siteStyle + `</style>
</head>
<body>
<header><a href="{{.RootPath}}index.html">{{.SiteTitle}}</a></header>
<main>
{{.Content}}
</main>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.SiteTitle}}</title>
<style>` + siteStyle + `</style>
</head>
<body>
<header><a href="index.html">{{.SiteTitle}}</a></header>
<main>
<h1>{{.SiteTitle}}</h1>
<ul>
{{- range .Pages}}
<li><a href="{{.Output}}">{{.Title}}</a></li>
{{- end}}
</ul>
</main>
</body>
</html>
`))
