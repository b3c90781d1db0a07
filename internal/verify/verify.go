package verify

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	apperrors "git.home.luguber.info/inful/pagesmith/internal/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// BrokenLink locates one unresolvable internal link.
type BrokenLink struct {
	Page string `json:"page"` // HTML file relative to the output root
	URL  string `json:"url"`  // link as written
	Tag  string `json:"tag"`
}

// Report summarizes a verification pass.
type Report struct {
	Pages  int          `json:"pages"`
	Links  int          `json:"links"`
	Broken []BrokenLink `json:"broken,omitempty"`
}

// CheckOutput verifies the built output. With links disabled it only
// confirms the directory holds files; with strict mode broken links become
// an error instead of warnings.
func CheckOutput(outputDir string, cfg appcfg.VerifyConfig) (Report, error) {
	var report Report

	if !cfg.Links {
		return report, nil
	}

	root, err := filepath.Abs(outputDir)
	if err != nil {
		return report, fmt.Errorf("resolving output dir: %w", err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".html") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		report.Pages++
		return checkPage(root, rel, &report)
	})
	if err != nil {
		return report, fmt.Errorf("walking output dir: %w", err)
	}

	for _, b := range report.Broken {
		slog.Warn("Broken internal link",
			logfields.Path(b.Page),
			logfields.URL(b.URL),
			slog.String("tag", b.Tag))
	}
	slog.Info("Output verified",
		slog.Int("pages", report.Pages),
		slog.Int("links", report.Links),
		slog.Int("broken", len(report.Broken)))

	if cfg.Strict && len(report.Broken) > 0 {
		return report, apperrors.New(apperrors.CategoryValidation, apperrors.SeverityFatal, "output verification failed").
			WithContext("broken_links", len(report.Broken))
	}
	return report, nil
}

// checkPage extracts the page's links and resolves the internal ones.
func checkPage(root, page string, report *Report) error {
	f, err := os.Open(filepath.Join(root, page))
	if err != nil {
		return err
	}
	defer f.Close()

	links, err := extractLinks(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", page, err)
	}

	for _, l := range links {
		if !shouldCheck(l.URL) {
			continue
		}
		u, err := url.Parse(l.URL)
		if err != nil || u.Scheme != "" || u.Host != "" {
			// Unparseable or external: out of scope for a tree check.
			continue
		}
		report.Links++
		if !resolves(root, page, u.Path) {
			report.Broken = append(report.Broken, BrokenLink{Page: page, URL: l.URL, Tag: l.Tag})
		}
	}
	return nil
}

// resolves reports whether an internal link target exists in the output
// tree. Directory targets count when they hold an index.html; targets that
// escape the root never resolve.
func resolves(root, page, linkPath string) bool {
	if linkPath == "" {
		return true // fragment or query on the current page
	}

	var target string
	if strings.HasPrefix(linkPath, "/") {
		target = filepath.Join(root, filepath.FromSlash(linkPath))
	} else {
		target = filepath.Join(root, filepath.Dir(page), filepath.FromSlash(linkPath))
	}

	clean := filepath.Clean(target)
	if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
		return false
	}

	info, err := os.Stat(clean)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(clean, "index.html"))
		return err == nil
	}
	return true
}
