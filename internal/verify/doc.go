// Package verify runs pre-publish checks on the built output directory.
//
// The link check parses every emitted HTML page and resolves internal links
// against the output tree: a link is broken when its target file does not
// exist (directories count when they hold an index.html) or when it escapes
// the output root. External links are never fetched. Broken links warn by
// default and fail the run in strict mode.
package verify
