// Package backend is the directory engine's write coordinator and search
// surface. It ties the lower layers together: entry bodies and DN mappings
// in the transactional store, attribute indexes through the index codec,
// and the entry cache for the in-memory view.
//
// Writes (Add, Modify, Delete) run as a single transaction each. A
// store-reported deadlock aborts the transaction and restarts the whole
// operation with backoff; the entry id allocated for an Add is reused
// across retries. The cache is only touched after the transaction commits.
//
// Search builds a candidate id set from the filter via the indexes, then
// streams entries that pass scope, access, and the exact filter predicate,
// honoring size and time limits and cooperative abandonment.
package backend
