// Package transforms holds the concrete operations the engine runs.
//
// Single-source operations:
//
//	arithmetic      combine numeric values with a literal, variable or track
//	interpolate     fill numeric values between periodic anchors
//	update_regions  combine one region property with an argument
//	filter_regions  remove (or keep only) the gated regions
//	merge_regions   join nearby gated regions of the same type
//
// Multi-source operations:
//
//	combine_regions  union of the gated regions of every source
//	combine_numeric  sum, mean, min or max of every source per position
//
// Operations are created through New, which returns a fresh instance per
// task; the instance holds the parameters it resolved and is read-only while
// the batch runs.
package transforms
