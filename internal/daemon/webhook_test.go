package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

type fakeSink struct {
	mu     sync.Mutex
	accept bool
	events []trigger.Event
}

func (fs *fakeSink) HandlePush(ev trigger.Event) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.events = append(fs.events, ev)
	return fs.accept
}

func (fs *fakeSink) received() []trigger.Event {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]trigger.Event(nil), fs.events...)
}

const githubPush = `{
	"ref": "refs/heads/main",
	"after": "7f3a9c1d2b4e5f60718293a4b5c6d7e8f901a2b3",
	"repository": {"full_name": "org/site"},
	"head_commit": {"id": "7f3a9c1d2b4e5f60718293a4b5c6d7e8f901a2b3"}
}`

func postWebhook(t *testing.T, ws *WebhookServer, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ws.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestWebhookGitHubPushAccepted(t *testing.T) {
	sink := &fakeSink{accept: true}
	ws := NewWebhookServer(":0", "", sink)

	rec := postWebhook(t, ws, "/hooks/push", githubPush, map[string]string{
		"X-GitHub-Event": "push",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "accepted" {
		t.Errorf("status field = %q, want accepted", got)
	}

	evs := sink.received()
	if len(evs) != 1 {
		t.Fatalf("sink received %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Repository != "org/site" {
		t.Errorf("repository = %q", ev.Repository)
	}
	if ev.Branch != "main" {
		t.Errorf("branch = %q, want main (ref prefix stripped)", ev.Branch)
	}
	if ev.Forge != ForgeGitHub {
		t.Errorf("forge = %q, want github", ev.Forge)
	}
	if ev.Kind != trigger.KindPush {
		t.Errorf("kind = %q, want push", ev.Kind)
	}
}

func TestWebhookRejectedEventAnswersIgnored(t *testing.T) {
	sink := &fakeSink{accept: false}
	ws := NewWebhookServer(":0", "", sink)

	rec := postWebhook(t, ws, "/hooks/push", githubPush, map[string]string{
		"X-GitHub-Event": "push",
	})

	// Trigger mismatch is a silent no-op, not an error: the forge gets a
	// 2xx so it neither retries nor flags the hook.
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "ignored" {
		t.Errorf("status field = %q, want ignored", got)
	}
}

func TestWebhookNonPushEventIgnored(t *testing.T) {
	sink := &fakeSink{accept: true}
	ws := NewWebhookServer(":0", "", sink)

	rec := postWebhook(t, ws, "/hooks/push", `{"zen":"keep it simple"}`, map[string]string{
		"X-GitHub-Event": "ping",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(sink.received()) != 0 {
		t.Error("non-push event reached the sink")
	}
}

func TestWebhookBranchDeletionIgnored(t *testing.T) {
	sink := &fakeSink{accept: true}
	ws := NewWebhookServer(":0", "", sink)

	body := `{"ref":"refs/heads/main","deleted":true,"repository":{"full_name":"org/site"}}`
	rec := postWebhook(t, ws, "/hooks/push", body, map[string]string{
		"X-GitHub-Event": "push",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(sink.received()) != 0 {
		t.Error("branch deletion reached the sink")
	}
}

func TestWebhookGitLabPayload(t *testing.T) {
	sink := &fakeSink{accept: true}
	ws := NewWebhookServer(":0", "", sink)

	body := `{
		"ref": "refs/heads/main",
		"checkout_sha": "c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00",
		"project": {"path_with_namespace": "group/site"}
	}`
	rec := postWebhook(t, ws, "/hooks/gitlab", body, map[string]string{
		"X-Gitlab-Event": "Push Hook",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	evs := sink.received()
	if len(evs) != 1 {
		t.Fatalf("sink received %d events, want 1", len(evs))
	}
	if evs[0].Repository != "group/site" {
		t.Errorf("repository = %q", evs[0].Repository)
	}
	if evs[0].Commit != "c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00" {
		t.Errorf("commit = %q", evs[0].Commit)
	}
}

func TestWebhookSignatureVerification(t *testing.T) {
	sink := &fakeSink{accept: true}
	ws := NewWebhookServer(":0", "s3cret", sink)

	// Missing signature.
	rec := postWebhook(t, ws, "/hooks/push", githubPush, map[string]string{
		"X-GitHub-Event": "push",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no signature: status = %d, want 401", rec.Code)
	}

	// Wrong signature.
	rec = postWebhook(t, ws, "/hooks/push", githubPush, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": "sha256=" + strings.Repeat("0", 64),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: status = %d, want 401", rec.Code)
	}

	// Valid signature.
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(githubPush))
	rec = postWebhook(t, ws, "/hooks/push", githubPush, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": "sha256=" + hex.EncodeToString(mac.Sum(nil)),
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("good signature: status = %d, want 202", rec.Code)
	}
	if len(sink.received()) != 1 {
		t.Errorf("sink received %d events, want 1", len(sink.received()))
	}
}

func TestWebhookGitLabTokenVerification(t *testing.T) {
	sink := &fakeSink{accept: true}
	ws := NewWebhookServer(":0", "s3cret", sink)

	body := `{"ref":"refs/heads/main","project":{"path_with_namespace":"group/site"}}`

	rec := postWebhook(t, ws, "/hooks/gitlab", body, map[string]string{
		"X-Gitlab-Event": "Push Hook",
		"X-Gitlab-Token": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	rec = postWebhook(t, ws, "/hooks/gitlab", body, map[string]string{
		"X-Gitlab-Event": "Push Hook",
		"X-Gitlab-Token": "s3cret",
	})
	if rec.Code != http.StatusAccepted {
		t.Errorf("good token: status = %d, want 202", rec.Code)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	ws := NewWebhookServer(":0", "", &fakeSink{})

	req := httptest.NewRequest(http.MethodGet, "/hooks/push", nil)
	rec := httptest.NewRecorder()
	ws.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestDetectForge(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		ua      string
		want    string
	}{
		{"github header", map[string]string{"X-GitHub-Event": "push"}, "", ForgeGitHub},
		{"gitlab header", map[string]string{"X-Gitlab-Event": "Push Hook"}, "", ForgeGitLab},
		{"forgejo header", map[string]string{"X-Forgejo-Event": "push"}, "", ForgeForgejo},
		{"gitea header", map[string]string{"X-Gitea-Event": "push"}, "", ForgeForgejo},
		{"github ua", nil, "GitHub-Hookshot/abc123", ForgeGitHub},
		{"unknown", nil, "curl/8.0", ForgeUnknown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/hooks/push", nil)
			for k, v := range test.headers {
				req.Header.Set(k, v)
			}
			if test.ua != "" {
				req.Header.Set("User-Agent", test.ua)
			}
			if got := detectForge(req); got != test.want {
				t.Errorf("detectForge = %q, want %q", got, test.want)
			}
		})
	}
}
