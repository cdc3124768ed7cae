package sync

import (
	"context"
	"testing"
	"time"
)

// item is the minimal record type the engine tests reconcile.
type item struct {
	ID     string
	Owner  string
	Value  int
	Pend   bool
	Dead   bool
	Synced int64
}

func (i item) Key() Key {
	return Key{ID: i.ID, OwnerID: i.Owner}
}

func (i item) Pending() bool {
	return i.Pend
}

func (i item) Tombstoned() bool {
	return i.Dead
}

func (i item) SyncedAtUnix() int64 {
	return i.Synced
}

func (i item) MarkSynced(at time.Time) item {
	i.Pend = false
	i.Synced = at.UTC().Unix()
	return i
}

func (i item) MarkPending() item {
	i.Pend = true
	return i
}

func (i item) EqualPayload(other item) bool {
	return i.ID == other.ID && i.Owner == other.Owner && i.Value == other.Value
}

// maxValue merges two clean items by keeping the larger value.
func maxValue(local, remote item) item {
	merged := local
	if remote.Value > merged.Value {
		merged.Value = remote.Value
	}
	return merged
}

// memStore is an in-memory LocalStore.
type memStore struct {
	records map[Key]item
	getErr  error
	putErr  error
	puts    int
}

func newMemStore(records ...item) *memStore {
	store := &memStore{records: make(map[Key]item)}
	for _, record := range records {
		store.records[record.Key()] = record
	}
	return store
}

func (s *memStore) Get(_ context.Context, key Key) (item, bool, error) {
	if s.getErr != nil {
		return item{}, false, s.getErr
	}
	record, ok := s.records[key]
	return record, ok, nil
}

func (s *memStore) Put(_ context.Context, record item) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts++
	s.records[record.Key()] = record
	return nil
}

func (s *memStore) PutAll(ctx context.Context, records []item) error {
	for _, record := range records {
		if err := s.Put(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Remove(_ context.Context, key Key) error {
	delete(s.records, key)
	return nil
}

func (s *memStore) Clear(_ context.Context, scope Scope) error {
	for key := range s.records {
		if scope.IsOwned() && key.OwnerID != scope.OwnerID() {
			continue
		}
		delete(s.records, key)
	}
	return nil
}

func (s *memStore) List(_ context.Context, scope Scope) ([]item, error) {
	var records []item
	for _, record := range s.records {
		if scope.IsOwned() && record.Owner != scope.OwnerID() {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *memStore) ListPending(ctx context.Context, scope Scope) ([]item, error) {
	records, err := s.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	var pending []item
	for _, record := range records {
		if record.Pend {
			pending = append(pending, record)
		}
	}
	return pending, nil
}

// memRemote is an in-memory RemoteStore with injectable failures.
type memRemote struct {
	records   map[Key]item
	fetchErr  error
	upsertErr map[string]error
	deleteErr map[string]error
	upserts   int
	deletes   int
}

func newMemRemote(records ...item) *memRemote {
	remote := &memRemote{
		records:   make(map[Key]item),
		upsertErr: make(map[string]error),
		deleteErr: make(map[string]error),
	}
	for _, record := range records {
		remote.records[record.Key()] = record
	}
	return remote
}

func (r *memRemote) FetchAll(_ context.Context) ([]item, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	var records []item
	for _, record := range r.records {
		records = append(records, record)
	}
	return records, nil
}

func (r *memRemote) FetchByOwner(ctx context.Context, ownerID string) ([]item, error) {
	records, err := r.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	var owned []item
	for _, record := range records {
		if record.Owner == ownerID {
			owned = append(owned, record)
		}
	}
	return owned, nil
}

func (r *memRemote) FetchByID(_ context.Context, key Key) (item, bool, error) {
	record, ok := r.records[key]
	return record, ok, nil
}

func (r *memRemote) Upsert(_ context.Context, record item) error {
	if err := r.upsertErr[record.ID]; err != nil {
		return err
	}
	r.upserts++
	r.records[record.Key()] = record
	return nil
}

func (r *memRemote) Delete(_ context.Context, key Key) error {
	if err := r.deleteErr[key.ID]; err != nil {
		return err
	}
	r.deletes++
	delete(r.records, key)
	return nil
}

func newTestReconciler(t *testing.T, store *memStore, remote *memRemote, guarded bool) *Reconciler[item] {
	t.Helper()
	cfg := ReconcilerConfig[item]{
		Entity: "items",
		Local:  store,
		Remote: remote,
		Fields: maxValue,
		Clock:  func() time.Time { return time.Unix(1700000600, 0) },
	}
	if guarded {
		cfg.Guard = NewGuard("items", nil)
	}
	reconciler, err := NewReconciler(cfg)
	if err != nil {
		t.Fatalf("unexpected reconciler error: %v", err)
	}
	return reconciler
}

func mustOwnerScope(t *testing.T, ownerID string) Scope {
	t.Helper()
	scope, err := OwnerScope(ownerID)
	if err != nil {
		t.Fatalf("unexpected owner scope error: %v", err)
	}
	return scope
}
