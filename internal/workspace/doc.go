// Package workspace manages checkout directories for pipeline runs, supporting
// both ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates a timestamped directory (e.g. pagesmith-20260823-101502)
// for a single run and removes it completely afterwards.
//
// Persistent mode uses a fixed directory (e.g. /var/lib/pagesmith/working) that
// survives across runs, enabling incremental checkouts in daemon mode.
package workspace
