// Package pipeline orchestrates one run: workspace, checkout, steps (or the
// render fallback for step-less pipelines), verification and publish, in that
// order, aborting on the first failure. Publishing happens if and only if
// everything before it passed. The Run model it produces is what history, the
// admin API and notifications consume.
package pipeline
