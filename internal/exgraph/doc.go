// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package exgraph implements the execution graph explored by the checker.
//
// A graph records one candidate interleaving of the subject program as a DAG
// over its events. Program order, reads-from and coherency are kept as typed
// edges between nodes, and every node carries a vector clock that answers
// happens-before queries in constant time per component.
//
// The package offers three kinds of operations:
//
//   - Mutations used while recording and while adopting an alternative:
//     AddEvent, SetReadsFrom, ChangeReadsFrom, TrackCoherency, SwapCoherency,
//     Restrict and RestrictBySet, and RecomputeVectorClocks.
//   - Queries that discover alternatives: CoMax, AlternativeWrites,
//     CoherentPlacings, PotentialReads and the lock variants.
//   - Checks and exports: CheckConsistency (sequential consistency plus a
//     topological order), TaskSchedule (directives that replay an order),
//     Equal, and the JSON snapshot.
//
// A Graph is not safe for concurrent use. Clones are fully independent.
package exgraph
