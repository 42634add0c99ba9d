// Package engine runs transforms over the sequences of a collection.
//
// # Batches
//
// A batch applies one Operation to every sequence of a sequence collection:
//
//  1. The source dataset and the collection are looked up and checked for kind.
//  2. The operation resolves its parameters; the where and within conditions
//     are resolved into immutable predicates.
//  3. For operations that work on sub-ranges, sequences with no position
//     satisfying within are dropped.
//  4. The source is cloned into the target. The source is never written.
//  5. One unit of work per sequence runs on a bounded worker pool.
//  6. The first failing unit cancels the rest; the target is discarded.
//  7. On success the target is finalized, marked derived and published.
//
// Steps 1 and 2 fail with configuration or type-mismatch errors before any
// worker exists. Nothing is ever partially committed.
//
// # Gating
//
// Transforms ask the Gate whether a position or region may be written. The
// within condition is checked first; the where condition only when within holds.
//
// # Progress and cancellation
//
// Each Task carries a CancelToken and an optional ProgressSink. Workers check
// the token on entry and exit, and report (completed, total) under a single
// lock so the reported counts never decrease.
package engine
