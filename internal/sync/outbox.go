package sync

import "context"

// Outbox is the set of locally-mutated-but-unconfirmed records, derived from
// the record store's pending flag rather than kept as a separate queue. One
// snapshot feeds one push pass: records that become pending mid-pass are picked
// up on the next pass, keeping each pass's outcome deterministic.
type Outbox[T Record[T]] struct {
	store LocalStore[T]
}

// NewOutbox derives an outbox over the given local store.
func NewOutbox[T Record[T]](store LocalStore[T]) *Outbox[T] {
	return &Outbox[T]{store: store}
}

// Snapshot returns the pending records within scope as an owned slice the
// caller may iterate without observing concurrent local edits.
func (o *Outbox[T]) Snapshot(ctx context.Context, scope Scope) ([]T, error) {
	pending, err := o.store.ListPending(ctx, scope)
	if err != nil {
		return nil, err
	}
	snapshot := make([]T, len(pending))
	copy(snapshot, pending)
	return snapshot, nil
}
