// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the checking lifecycle, decoupled from any
// specific entrypoint like a CLI or server.
//
// An App loads one subject program at construction, merges the checker
// settings of the program file with the explicit configuration, and runs
// the search next to an optional HTTP server exposing /health and /metrics.
package app
