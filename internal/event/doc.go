// Package event defines the events the checker reasons about.
//
// Every observed action of the subject program becomes an Event with a stable
// Key (task, per-task sequence number) and a Kind drawn from a closed set.
// Core dispatch happens on Kind only; the attribute bag carries auxiliary
// data such as the spawning task of a thread start or the message of an
// error. The Factory maps the 1-indexed events reported by a runtime onto
// the 0-indexed events used by the graph.
package event
