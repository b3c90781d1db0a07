package daemon

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

// Forge identifiers as reported in webhook events and logs.
const (
	ForgeGitHub  = "github"
	ForgeGitLab  = "gitlab"
	ForgeForgejo = "forgejo"
	ForgeUnknown = "unknown"
)

// maxWebhookBody caps payload reads; push payloads are small and anything
// larger is not worth parsing.
const maxWebhookBody = 1 << 20

// PushSink receives normalized push events from webhook handlers. The
// returned flag reports whether the event was accepted for a run; rejected
// events are acknowledged to the forge either way.
type PushSink interface {
	HandlePush(ev trigger.Event) (accepted bool)
}

// WebhookServer receives push webhooks from GitHub, GitLab and Forgejo
// (Gitea-compatible) and feeds accepted events into the daemon.
type WebhookServer struct {
	addr   string
	secret string
	sink   PushSink
	mux    *http.ServeMux
	server *http.Server
}

// NewWebhookServer creates the webhook server on addr. secret enables
// delivery verification when non-empty: signature for GitHub/Forgejo,
// token header for GitLab.
func NewWebhookServer(addr, secret string, sink PushSink) *WebhookServer {
	ws := &WebhookServer{
		addr:   addr,
		secret: secret,
		sink:   sink,
		mux:    http.NewServeMux(),
	}

	// Generic endpoint auto-detects the forge; per-forge endpoints skip
	// detection for setups that want explicit hook URLs.
	ws.mux.HandleFunc("/hooks/push", ws.handleGeneric)
	ws.mux.HandleFunc("/hooks/github", ws.forgeHandler(ForgeGitHub))
	ws.mux.HandleFunc("/hooks/gitlab", ws.forgeHandler(ForgeGitLab))
	ws.mux.HandleFunc("/hooks/forgejo", ws.forgeHandler(ForgeForgejo))

	ws.server = &http.Server{
		Addr:         addr,
		Handler:      ws.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ws
}

// Serve accepts connections on a pre-bound listener. Blocks like
// http.Server.Serve.
func (ws *WebhookServer) Serve(ln net.Listener) error {
	return ws.server.Serve(ln)
}

// Start listens on the configured address and serves. Blocks.
func (ws *WebhookServer) Start() error {
	return ws.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (ws *WebhookServer) Stop(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

func (ws *WebhookServer) handleGeneric(w http.ResponseWriter, r *http.Request) {
	ws.handlePush(w, r, detectForge(r))
}

func (ws *WebhookServer) forgeHandler(forge string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws.handlePush(w, r, forge)
	}
}

// handlePush verifies, parses and submits one webhook delivery. Only push
// events become runs; everything else is acknowledged with 202 and an
// "ignored" status so forges do not retry or flag the hook.
func (ws *WebhookServer) handlePush(w http.ResponseWriter, r *http.Request, forge string) {
	if r.Method != http.MethodPost {
		writeWebhookJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	if ws.secret != "" {
		if err := verifyDelivery(r, forge, ws.secret, body); err != nil {
			slog.Warn("Webhook delivery rejected",
				logfields.ForgeType(forge),
				logfields.RemoteAddr(r.RemoteAddr),
				logfields.Error(err))
			writeWebhookJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
	}

	if event := forgeEventName(r, forge); event != "" && !isPushEvent(event) {
		writeWebhookJSON(w, http.StatusAccepted, map[string]string{
			"status": "ignored",
			"reason": "event " + event,
		})
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeWebhookJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}

	if payload.Deleted {
		writeWebhookJSON(w, http.StatusAccepted, map[string]string{
			"status": "ignored",
			"reason": "branch deleted",
		})
		return
	}
	if payload.Ref == "" {
		writeWebhookJSON(w, http.StatusBadRequest, map[string]string{"error": "payload has no ref"})
		return
	}

	ev := trigger.Event{
		Kind:       trigger.KindPush,
		Repository: payload.repoFullName(),
		Branch:     trigger.NormalizeBranchRef(payload.Ref),
		Commit:     payload.headCommit(),
		Forge:      forge,
		ReceivedAt: time.Now(),
	}

	if !ws.sink.HandlePush(ev) {
		writeWebhookJSON(w, http.StatusAccepted, map[string]string{
			"status": "ignored",
		})
		return
	}

	writeWebhookJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"repository": ev.Repository,
		"branch":     ev.Branch,
	})
}

// pushPayload covers the push event shapes of all three supported forges.
// GitHub and Forgejo use repository.full_name + after/head_commit; GitLab
// uses project.path_with_namespace + checkout_sha.
type pushPayload struct {
	Ref         string `json:"ref"`
	After       string `json:"after"`
	Deleted     bool   `json:"deleted"`
	CheckoutSHA string `json:"checkout_sha"`
	Repository  *struct {
		FullName          string `json:"full_name"`
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"repository"`
	Project *struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	HeadCommit *struct {
		ID string `json:"id"`
	} `json:"head_commit"`
}

func (p *pushPayload) repoFullName() string {
	if p.Repository != nil {
		if p.Repository.FullName != "" {
			return p.Repository.FullName
		}
		if p.Repository.PathWithNamespace != "" {
			return p.Repository.PathWithNamespace
		}
	}
	if p.Project != nil {
		return p.Project.PathWithNamespace
	}
	return ""
}

// headCommit returns the SHA the push left the branch at. A push that only
// deletes commits still carries "after"; GitLab reports checkout_sha.
func (p *pushPayload) headCommit() string {
	if p.After != "" && p.After != strings.Repeat("0", 40) {
		return p.After
	}
	if p.CheckoutSHA != "" {
		return p.CheckoutSHA
	}
	if p.HeadCommit != nil {
		return p.HeadCommit.ID
	}
	return ""
}

// detectForge identifies the sending forge from headers and user agent.
func detectForge(r *http.Request) string {
	ua := strings.ToLower(r.UserAgent())

	if r.Header.Get("X-Gitlab-Event") != "" || strings.Contains(ua, "gitlab") {
		return ForgeGitLab
	}
	if r.Header.Get("X-Forgejo-Event") != "" || r.Header.Get("X-Gitea-Event") != "" ||
		strings.Contains(ua, "forgejo") || strings.Contains(ua, "gitea") {
		return ForgeForgejo
	}
	if r.Header.Get("X-GitHub-Event") != "" || strings.Contains(ua, "github") {
		return ForgeGitHub
	}
	return ForgeUnknown
}

// forgeEventName extracts the event type header for the given forge.
func forgeEventName(r *http.Request, forge string) string {
	switch forge {
	case ForgeGitLab:
		return r.Header.Get("X-Gitlab-Event")
	case ForgeForgejo:
		if ev := r.Header.Get("X-Forgejo-Event"); ev != "" {
			return ev
		}
		return r.Header.Get("X-Gitea-Event")
	default:
		return r.Header.Get("X-GitHub-Event")
	}
}

// isPushEvent reports whether the header names a push. GitLab calls it
// "Push Hook"; GitHub and Forgejo use "push".
func isPushEvent(event string) bool {
	switch strings.ToLower(event) {
	case "push", "push hook":
		return true
	}
	return false
}

// verifyDelivery checks the shared secret. GitHub and Forgejo sign the body
// with HMAC-SHA256 in X-Hub-Signature-256; GitLab sends the secret verbatim
// in X-Gitlab-Token.
func verifyDelivery(r *http.Request, forge, secret string, body []byte) error {
	if forge == ForgeGitLab {
		token := r.Header.Get("X-Gitlab-Token")
		if token == "" {
			return errMissingToken
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return errBadToken
		}
		return nil
	}

	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		return errMissingSignature
	}
	sig = strings.TrimPrefix(sig, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return errBadSignature
	}
	return nil
}

var (
	errMissingToken     = webhookAuthError("missing webhook token")
	errBadToken         = webhookAuthError("webhook token mismatch")
	errMissingSignature = webhookAuthError("missing webhook signature")
	errBadSignature     = webhookAuthError("webhook signature mismatch")
)

type webhookAuthError string

func (e webhookAuthError) Error() string { return string(e) }

func writeWebhookJSON(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write webhook response", logfields.Error(err))
	}
}
