package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/steps"
	"git.home.luguber.info/inful/pagesmith/internal/trigger"
)

func TestNewNotifierDisabledWithoutURL(t *testing.T) {
	n, err := NewNotifier(appcfg.NATSConfig{})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier

	err := n.NotifyRun(t.Context(), &pipeline.Run{ID: "run-1", Status: pipeline.StatusPublished})
	assert.NoError(t, err)
	n.Close()
}

func TestNotificationForPublishedRun(t *testing.T) {
	started := time.Now().Add(-3 * time.Second)
	run := &pipeline.Run{
		ID: "run-1",
		Event: trigger.Event{
			Kind:       trigger.KindPush,
			Repository: "example/project",
			Branch:     "master",
		},
		Status:          pipeline.StatusPublished,
		Commit:          "abc123",
		FailedStepIndex: -1,
		PublishedTo:     "branch:gh-pages@origin",
		StartedAt:       started,
		FinishedAt:      started.Add(3 * time.Second),
	}

	rn := notificationFor(run)
	assert.Equal(t, "run-1", rn.RunID)
	assert.Equal(t, "example/project", rn.Repository)
	assert.Equal(t, "push", rn.Trigger)
	assert.Equal(t, "published", rn.Status)
	assert.Equal(t, "branch:gh-pages@origin", rn.PublishedTo)
	assert.Equal(t, int64(3000), rn.DurationMS)
	assert.Empty(t, rn.FailedStep)
}

func TestNotificationForFailedRunNamesStep(t *testing.T) {
	run := &pipeline.Run{
		ID:     "run-2",
		Status: pipeline.StatusFailed,
		Error:  "step failed",
		Steps: []steps.StepResult{
			{Name: "prepare", ExitCode: 0},
			{Name: "build", ExitCode: 3},
		},
		FailedStepIndex: 1,
	}

	rn := notificationFor(run)
	assert.Equal(t, "failed", rn.Status)
	assert.Equal(t, "build", rn.FailedStep)
	assert.Equal(t, "step failed", rn.Error)
}

func TestSubjectFollowsStatus(t *testing.T) {
	n := &Notifier{prefix: "pagesmith"}

	published := &pipeline.Run{Status: pipeline.StatusPublished}
	failed := &pipeline.Run{Status: pipeline.StatusFailed}

	assert.Equal(t, "pagesmith.runs.published", n.subjectFor(published))
	assert.Equal(t, "pagesmith.runs.failed", n.subjectFor(failed))
}
