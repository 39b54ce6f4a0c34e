// Package revisit builds and validates backward revisits.
//
// A backward revisit proposes that a newly added write becomes the source of
// a read that was recorded earlier. The proposal is represented by a view
// that owns its own graph clone, so rejecting it never touches the live
// graph. Accepted views hand their restricted graph to the exploration stack.
package revisit
