// Package trigger decides which push events start a run.
package trigger

import "time"

// EventKind classifies how a run request originated.
type EventKind string

const (
	KindPush      EventKind = "push"
	KindManual    EventKind = "manual"
	KindScheduled EventKind = "scheduled"
)

// Event is a normalized push notification. Webhook handlers produce one per
// delivery; manual and scheduled triggers synthesize them.
type Event struct {
	Kind       EventKind `json:"kind"`
	Repository string    `json:"repository"` // full name, e.g. "org/project"
	Branch     string    `json:"branch"`
	Commit     string    `json:"commit,omitempty"` // head commit SHA when known
	Forge      string    `json:"forge,omitempty"`  // github|gitlab|forgejo|unknown
	ReceivedAt time.Time `json:"received_at"`
}
