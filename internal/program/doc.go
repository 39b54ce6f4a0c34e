// Package program defines the format-agnostic model of a subject program:
// shared variables, threads with their ordered operations, and optional
// checker settings. The Loader interface is implemented per source format;
// the HCL implementation lives in package hcl.
//
// Operation operands that are computed at run time (written values,
// conditions) are kept as hcl.Expression and evaluated by the runtime
// against the registers of the executing thread.
package program
