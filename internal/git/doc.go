// Package git checks out the pipeline repository for runs.
//
// Ephemeral workspaces get a fresh single-branch clone; persistent workspaces
// are fetched and hard-reset so the checkout always mirrors the remote, even
// across force pushes. Transient transport failures are retried per the
// configured retry policy; authentication and missing-repository failures are
// permanent and fail the run immediately.
package git
