package sync

// FieldMerger reconciles two non-pending records for the same key at the field
// level. It is only consulted once the generic precedence rules have ruled out
// the trivial cases, so both inputs are always present and local carries no
// unsynced edit. Implementations must be pure.
type FieldMerger[T Record[T]] func(local, remote T) T

// RemoteWins is the FieldMerger for simple records: once no local edit is
// outstanding the remote store is the tie-breaking source of truth.
func RemoteWins[T Record[T]](_, remote T) T {
	return remote
}

// MergeResult is the outcome of merging one local/remote pair.
type MergeResult[T Record[T]] struct {
	// Record is the reconciled record.
	Record T
	// NeedsLocalWrite reports that Record differs from what the local store
	// holds and must be re-persisted.
	NeedsLocalWrite bool
	// NeedsRemoteWrite reports that Record differs from the remote copy and
	// must be pushed (the record stays pending).
	NeedsRemoteWrite bool
}

// Merge applies the precedence rules shared by every entity class. Evaluated in
// priority order:
//
//  1. local absent: take remote.
//  2. remote absent: keep local, push it if it is pending.
//  3. local pending: local wins outright. An un-pushed local edit is never
//     overwritten by a stale remote read.
//  4. otherwise: field-level merge via fields.
//
// Merge is pure; the caller persists the result and adjusts sync bookkeeping.
func Merge[T Record[T]](local, remote *T, fields FieldMerger[T]) MergeResult[T] {
	switch {
	case local == nil && remote == nil:
		return MergeResult[T]{}
	case local == nil:
		return MergeResult[T]{Record: *remote, NeedsLocalWrite: true}
	case remote == nil:
		return MergeResult[T]{Record: *local, NeedsRemoteWrite: (*local).Pending()}
	case (*local).Pending():
		return MergeResult[T]{Record: *local, NeedsRemoteWrite: true}
	}

	merged := fields(*local, *remote)
	return MergeResult[T]{
		Record:           merged,
		NeedsLocalWrite:  !merged.EqualPayload(*local),
		NeedsRemoteWrite: !merged.EqualPayload(*remote),
	}
}
