package verify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
)

func writeOutput(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCheckOutput_AllLinksResolve(t *testing.T) {
	dir := writeOutput(t, map[string]string{
		"index.html": `<html><body>
			<a href="guide/">guide</a>
			<a href="guide/setup.html">setup</a>
			<a href="/assets/app.css">style</a>
			<a href="#section">anchor</a>
			<a href="https://example.com/external">external</a>
			<a href="mailto:team@example.com">mail</a>
			<img src="assets/logo.png">
		</body></html>`,
		"guide/index.html": `<html><body><a href="../index.html">home</a></body></html>`,
		"guide/setup.html": `<html><body>ok</body></html>`,
		"assets/app.css":   "body{}",
		"assets/logo.png":  "png",
	})

	report, err := CheckOutput(dir, appcfg.VerifyConfig{Links: true, Strict: true})
	if err != nil {
		t.Fatalf("CheckOutput: %v", err)
	}
	if len(report.Broken) != 0 {
		t.Errorf("broken links: %+v", report.Broken)
	}
	if report.Pages != 3 {
		t.Errorf("pages = %d, want 3", report.Pages)
	}
	// Anchor, external and mailto links are out of scope.
	if report.Links != 5 {
		t.Errorf("checked links = %d, want 5", report.Links)
	}
}

func TestCheckOutput_ReportsBrokenLinks(t *testing.T) {
	dir := writeOutput(t, map[string]string{
		"index.html": `<html><body>
			<a href="missing.html">gone</a>
			<a href="ok.html">fine</a>
			<img src="no/such.png">
		</body></html>`,
		"ok.html": "<html></html>",
	})

	report, err := CheckOutput(dir, appcfg.VerifyConfig{Links: true})
	if err != nil {
		t.Fatalf("non-strict CheckOutput must not fail: %v", err)
	}
	if len(report.Broken) != 2 {
		t.Fatalf("broken = %+v, want 2 entries", report.Broken)
	}
	urls := map[string]bool{}
	for _, b := range report.Broken {
		urls[b.URL] = true
		if b.Page != "index.html" {
			t.Errorf("broken link page = %s", b.Page)
		}
	}
	if !urls["missing.html"] || !urls["no/such.png"] {
		t.Errorf("unexpected broken set: %+v", report.Broken)
	}
}

func TestCheckOutput_StrictFailsOnBroken(t *testing.T) {
	dir := writeOutput(t, map[string]string{
		"index.html": `<a href="nope.html">x</a>`,
	})

	_, err := CheckOutput(dir, appcfg.VerifyConfig{Links: true, Strict: true})
	if err == nil {
		t.Fatal("strict mode must fail on broken links")
	}
	if !strings.Contains(err.Error(), "verification failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckOutput_EscapingLinkIsBroken(t *testing.T) {
	dir := writeOutput(t, map[string]string{
		"index.html": `<a href="../../etc/passwd">escape</a>`,
	})

	report, err := CheckOutput(dir, appcfg.VerifyConfig{Links: true})
	if err != nil {
		t.Fatalf("CheckOutput: %v", err)
	}
	if len(report.Broken) != 1 {
		t.Errorf("escaping link not flagged: %+v", report.Broken)
	}
}

func TestCheckOutput_DirectoryNeedsIndex(t *testing.T) {
	dir := writeOutput(t, map[string]string{
		"index.html":         `<a href="with/">ok</a><a href="without/">bad</a>`,
		"with/index.html":    "<html></html>",
		"without/readme.txt": "no index here",
	})

	report, err := CheckOutput(dir, appcfg.VerifyConfig{Links: true})
	if err != nil {
		t.Fatalf("CheckOutput: %v", err)
	}
	if len(report.Broken) != 1 || report.Broken[0].URL != "without/" {
		t.Errorf("broken = %+v, want only without/", report.Broken)
	}
}

func TestCheckOutput_Disabled(t *testing.T) {
	dir := writeOutput(t, map[string]string{
		"index.html": `<a href="definitely-missing.html">x</a>`,
	})

	report, err := CheckOutput(dir, appcfg.VerifyConfig{})
	if err != nil {
		t.Fatalf("CheckOutput: %v", err)
	}
	if report.Pages != 0 || report.Links != 0 {
		t.Errorf("disabled check still scanned: %+v", report)
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><head>
		<link rel="stylesheet" href="app.css">
		<script src="app.js"></script>
	</head><body>
		<a href="page.html">text</a>
		<img src="logo.png" alt="logo">
		<iframe src="embed.html"></iframe>
		<a>no href</a>
	</body></html>`

	links, err := extractLinks(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extractLinks: %v", err)
	}
	if len(links) != 5 {
		t.Fatalf("extracted %d links, want 5: %+v", len(links), links)
	}
	byTag := map[string]string{}
	for _, l := range links {
		byTag[l.Tag] = l.URL
	}
	if byTag["link"] != "app.css" || byTag["script"] != "app.js" ||
		byTag["a"] != "page.html" || byTag["img"] != "logo.png" || byTag["iframe"] != "embed.html" {
		t.Errorf("unexpected links: %+v", byTag)
	}
}

func TestShouldCheck(t *testing.T) {
	skip := []string{"", "#top", "mailto:x@y.z", "tel:123", "javascript:void(0)", "data:image/png;base64,xyz"}
	for _, u := range skip {
		if shouldCheck(u) {
			t.Errorf("shouldCheck(%q) = true, want false", u)
		}
	}
	check := []string{"page.html", "/abs/path.html", "../up.html", "dir/"}
	for _, u := range check {
		if !shouldCheck(u) {
			t.Errorf("shouldCheck(%q) = false, want true", u)
		}
	}
}
