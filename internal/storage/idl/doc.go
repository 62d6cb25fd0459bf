// Package idl implements the ID list, the candidate-set representation used
// by the attribute indexes and the search planner.
//
// An ID list is a sorted set of entry IDs in one of two forms:
//
//   - Explicit: a strictly ascending array of distinct IDs, bounded by
//     MaxIDs. Membership is exact.
//   - Range: a compressed {first, last} pair meaning "every ID in the span
//     is a candidate, membership unconfirmed". A list collapses to this form
//     when the explicit form would overflow, trading precision for bounded
//     memory. A Range is always a superset of the exact answer, never a
//     subset, so a search that verifies each candidate against the real
//     entry remains correct.
//
// The set algebra (Insert, Delete, Intersect, Union) preserves both
// invariants: explicit lists stay strictly ascending with no duplicates,
// and Range results only ever widen toward a superset.
package idl
