package sync

import "context"

// LocalStore is the record-store contract the engine consumes. Implementations
// back it with the local cache database. Failures are reported as *Error with
// ClassLocal; a failed call leaves the store unmodified.
type LocalStore[T Record[T]] interface {
	// Get fetches one record by key.
	Get(ctx context.Context, key Key) (T, bool, error)
	// Put upserts one record.
	Put(ctx context.Context, record T) error
	// PutAll upserts a batch of records.
	PutAll(ctx context.Context, records []T) error
	// Remove physically deletes one record. Used only after a remote delete
	// is confirmed; a tombstone, not Remove, represents a user delete.
	Remove(ctx context.Context, key Key) error
	// Clear physically deletes every record within scope. Used only by full
	// resync after the replacement fetch has succeeded.
	Clear(ctx context.Context, scope Scope) error
	// List returns every record within scope.
	List(ctx context.Context, scope Scope) ([]T, error)
	// ListPending returns the records within scope awaiting a remote write.
	ListPending(ctx context.Context, scope Scope) ([]T, error)
}

// RemoteStore is the source-of-truth contract. Failures are reported as *Error
// (transient or permission) and never mutate the caller's local state. Upsert
// must be idempotent: the engine guarantees at-least-once delivery, not
// exactly-once.
type RemoteStore[T Record[T]] interface {
	// FetchAll returns every remote record of the entity type.
	FetchAll(ctx context.Context) ([]T, error)
	// FetchByOwner returns the remote records belonging to one owner.
	FetchByOwner(ctx context.Context, ownerID string) ([]T, error)
	// FetchByID returns one remote record.
	FetchByID(ctx context.Context, key Key) (T, bool, error)
	// Upsert writes one record to the remote store.
	Upsert(ctx context.Context, record T) error
	// Delete removes one record from the remote store. Deleting a record
	// that does not exist is not an error.
	Delete(ctx context.Context, key Key) error
}
