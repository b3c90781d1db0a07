// Package publish pushes a built site to its configured target.
//
// Publishing replaces the target's content wholesale: a branch target gets a
// fresh orphan commit force-pushed over whatever the branch held, and a
// bucket target is mirrored (absent objects deleted). Publishing the same
// content twice therefore yields the same target content. Publishes to the
// same target are serialized process-wide.
package publish
