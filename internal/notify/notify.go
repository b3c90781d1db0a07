// Package notify publishes run outcomes to NATS JetStream so other systems
// (chat bridges, issue bots) can react to publishes and failures.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
)

const (
	connectName    = "pagesmith"
	publishTimeout = 5 * time.Second
	streamMaxMsgs  = 10_000
)

// RunNotification is the JSON payload published per finished run.
type RunNotification struct {
	RunID       string    `json:"run_id"`
	Repository  string    `json:"repository"`
	Branch      string    `json:"branch"`
	Commit      string    `json:"commit,omitempty"`
	Trigger     string    `json:"trigger"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	FailedStep  string    `json:"failed_step,omitempty"`
	PublishedTo string    `json:"published_to,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Notifier publishes run outcomes. A nil Notifier is a no-op, so callers
// never branch on whether NATS is configured.
type Notifier struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// NewNotifier connects to the configured NATS server and ensures the run
// stream exists. An empty URL disables notifications: the returned Notifier
// is nil and every method on it is a no-op.
func NewNotifier(cfg appcfg.NATSConfig) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(cfg.URL, nats.Name(connectName))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = connectName
	}

	n := &Notifier{conn: conn, js: js, prefix: prefix}
	if err := n.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Run notifications enabled",
		logfields.URL(cfg.URL),
		slog.String("subject_prefix", prefix))
	return n, nil
}

// ensureStream creates the bounded run stream if it does not exist yet.
func (n *Notifier) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     strings.ToUpper(strings.ReplaceAll(n.prefix, ".", "_")) + "_RUNS",
		Subjects: []string{n.prefix + ".runs.>"},
		MaxMsgs:  streamMaxMsgs,
	})
	if err != nil {
		return fmt.Errorf("ensuring run stream: %w", err)
	}
	return nil
}

// NotifyRun publishes the run's outcome on `<prefix>.runs.<status>`.
func (n *Notifier) NotifyRun(ctx context.Context, run *pipeline.Run) error {
	if n == nil {
		return nil
	}

	data, err := json.Marshal(notificationFor(run))
	if err != nil {
		return fmt.Errorf("marshaling run notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	subject := n.subjectFor(run)
	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing run notification: %w", err)
	}

	slog.Debug("Run notification published",
		logfields.RunID(run.ID),
		slog.String("subject", subject))
	return nil
}

// Close drains the connection; pending publishes flush first.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

func (n *Notifier) subjectFor(run *pipeline.Run) string {
	return n.prefix + ".runs." + string(run.Status)
}

// notificationFor flattens a run into its notification payload.
func notificationFor(run *pipeline.Run) RunNotification {
	rn := RunNotification{
		RunID:       run.ID,
		Repository:  run.Event.Repository,
		Branch:      run.Event.Branch,
		Commit:      run.Commit,
		Trigger:     string(run.Event.Kind),
		Status:      string(run.Status),
		Error:       run.Error,
		PublishedTo: run.PublishedTo,
		DurationMS:  run.Duration().Milliseconds(),
		FinishedAt:  run.FinishedAt,
	}
	if run.FailedStepIndex >= 0 && run.FailedStepIndex < len(run.Steps) {
		rn.FailedStep = run.Steps[run.FailedStepIndex].Name
	}
	return rn
}
