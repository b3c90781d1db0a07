// Package render is the built-in fallback site builder.
//
// A pipeline with no configured steps cannot produce output by running
// commands, so the run substitutes a single synthetic render step: the
// checked-out repository's markdown — a docs/ tree when one exists,
// otherwise the top-level README — is converted to a minimal static HTML
// site in the configured output directory. Relative links between
// markdown files are rewritten to their emitted .html counterparts, and
// an index page is generated when the sources do not provide one.
package render
