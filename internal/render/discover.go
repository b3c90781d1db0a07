package render

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// docsDirName is the conventional documentation tree rendered in
// preference to the repository README.
const docsDirName = "docs"

// sourceSet is the outcome of source discovery: markdown pages to
// convert and assets to copy through, both relative to Root.
type sourceSet struct {
	// Root is the directory page and asset paths are relative to. It is
	// the docs/ directory when one was found, else the repository root.
	Root   string
	Pages  []string
	Assets []string
}

// discoverSources decides what the fallback builder renders. A docs/
// directory containing at least one markdown file wins; otherwise the
// top-level README is rendered alone. Hidden files and directories are
// skipped throughout.
func discoverSources(repoDir string) (sourceSet, error) {
	docsDir := filepath.Join(repoDir, docsDirName)
	if info, err := os.Stat(docsDir); err == nil && info.IsDir() {
		set, err := walkDocsTree(docsDir)
		if err != nil {
			return sourceSet{}, err
		}
		if len(set.Pages) > 0 {
			return set, nil
		}
	}

	if readme, ok := findReadme(repoDir); ok {
		return sourceSet{Root: repoDir, Pages: []string{readme}}, nil
	}

	return sourceSet{}, fmt.Errorf("no %s/ tree and no README found in %s", docsDirName, repoDir)
}

func walkDocsTree(docsDir string) (sourceSet, error) {
	set := sourceSet{Root: docsDir}

	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != docsDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(docsDir, path)
		if err != nil {
			return err
		}
		switch {
		case isMarkdownFile(path):
			set.Pages = append(set.Pages, rel)
		case isAsset(path):
			set.Assets = append(set.Assets, rel)
		}
		return nil
	})
	if err != nil {
		return sourceSet{}, fmt.Errorf("walking %s: %w", docsDir, err)
	}
	return set, nil
}

// findReadme locates the repository README, matching the basename
// case-insensitively the way forges do.
func findReadme(repoDir string) (string, bool) {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() || !isMarkdownFile(entry.Name()) {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if strings.EqualFold(base, "README") {
			return entry.Name(), true
		}
	}
	return "", false
}

func isMarkdownFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".md" || ext == ".markdown" || ext == ".mdown" || ext == ".mkd"
}

// isAsset reports whether a docs-tree file is copied through to the
// output unchanged (images, stylesheets, downloads referenced from
// pages).
func isAsset(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".bmp", ".ico",
		".css", ".js",
		".pdf", ".txt",
		".mp4", ".webm", ".ogv",
		".csv", ".json", ".yaml", ".yml", ".xml":
		return true
	}
	return false
}
