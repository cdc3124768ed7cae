package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingEntity      = errors.New("entity type is required")
	errMissingLocalStore  = errors.New("local store is required")
	errMissingRemoteStore = errors.New("remote store is required")
	errMissingFieldMerger = errors.New("field merger is required")
	noOpLogger            = zap.NewNop()
)

const (
	opReconcile = "sync.reconcile"
	opPush      = "sync.push"
	opPull      = "sync.pull"
	opRecompute = "sync.recompute"
)

// RecordError captures one record's failure inside a pass. Per-record failures
// are isolated: one record failing never blocks the rest of the batch.
type RecordError struct {
	Key   Key
	Class Class
	Err   error
}

// Outcome aggregates the per-record results of one reconciliation pass.
type Outcome struct {
	Entity           EntityType
	Scope            Scope
	Full             bool
	Pushed           int
	PushFailed       int
	DeletesConfirmed int
	Merged           int
	Unchanged        int
	Violations       []Violation
	RecordErrors     []RecordError
}

// Clean reports whether every record in the pass succeeded.
func (o Outcome) Clean() bool {
	return o.PushFailed == 0 && len(o.Violations) == 0 && len(o.RecordErrors) == 0
}

// ReconcilerConfig wires one entity class into the generic engine.
type ReconcilerConfig[T Record[T]] struct {
	Entity EntityType
	Local  LocalStore[T]
	Remote RemoteStore[T]
	Fields FieldMerger[T]
	// Guard is set for owner-scoped entity classes and nil for shared ones.
	Guard *Guard
	// Recompute, when set, rebuilds the entity class's derived aggregate
	// after the pull phase.
	Recompute func(ctx context.Context, scope Scope) error
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Reconciler runs push-then-pull reconciliation passes for one entity class.
// A single Reconciler must not run two passes for the same scope concurrently;
// the Manager serializes triggers.
type Reconciler[T Record[T]] struct {
	entity    EntityType
	local     LocalStore[T]
	remote    RemoteStore[T]
	fields    FieldMerger[T]
	guard     *Guard
	recompute func(ctx context.Context, scope Scope) error
	outbox    *Outbox[T]
	clock     func() time.Time
	logger    *zap.Logger
}

// NewReconciler validates the configuration and constructs a Reconciler.
func NewReconciler[T Record[T]](cfg ReconcilerConfig[T]) (*Reconciler[T], error) {
	if cfg.Entity == "" {
		return nil, Local(opReconcile, errMissingEntity)
	}
	if cfg.Local == nil {
		return nil, Local(opReconcile, errMissingLocalStore)
	}
	if cfg.Remote == nil {
		return nil, Local(opReconcile, errMissingRemoteStore)
	}
	if cfg.Fields == nil {
		return nil, Local(opReconcile, errMissingFieldMerger)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Reconciler[T]{
		entity:    cfg.Entity,
		local:     cfg.Local,
		remote:    cfg.Remote,
		fields:    cfg.Fields,
		guard:     cfg.Guard,
		recompute: cfg.Recompute,
		outbox:    NewOutbox(cfg.Local),
		clock:     clock,
		logger:    logger,
	}, nil
}

// Entity returns the entity type this reconciler serves.
func (r *Reconciler[T]) Entity() EntityType {
	return r.entity
}

// OwnerScoped reports whether this entity is partitioned by owner. Entities
// without a guard are shared and always reconcile under ScopeAll.
func (r *Reconciler[T]) OwnerScoped() bool {
	return r.guard != nil
}

// Reconcile runs one push+pull+recompute cycle for the given scope. When full
// is set the local cache is cleared and repopulated from the remote store,
// after snapshotting pending records so an offline edit survives the refresh.
//
// Order matters: push precedes pull so a pull of stale remote data cannot
// overwrite an in-flight push. A returned error means the pass was abandoned;
// existing local state is preserved. Per-record failures do not produce an
// error, they are reported in the Outcome.
func (r *Reconciler[T]) Reconcile(ctx context.Context, scope Scope, full bool) (Outcome, error) {
	if r.guard == nil {
		// Shared entity classes have no owner dimension; an owner-scoped
		// trigger covers the whole table.
		scope = ScopeAll
	}
	outcome := Outcome{Entity: r.entity, Scope: scope, Full: full}

	if err := r.push(ctx, scope, &outcome); err != nil {
		return outcome, err
	}
	if err := r.pull(ctx, scope, full, &outcome); err != nil {
		return outcome, err
	}
	if r.recompute != nil {
		if err := r.recompute(ctx, scope); err != nil {
			r.logError(opRecompute, scope, err)
			return outcome, err
		}
	}
	return outcome, nil
}

func (r *Reconciler[T]) push(ctx context.Context, scope Scope, outcome *Outcome) error {
	pending, err := r.outbox.Snapshot(ctx, scope)
	if err != nil {
		r.logError(opPush, scope, err)
		return Local(opPush, err)
	}
	pending = r.filterOwned(scope, pending, outcome)

	now := r.clock().UTC()
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return Transient(opPush, err)
		}

		if record.Tombstoned() {
			if err := r.remote.Delete(ctx, record.Key()); err != nil {
				r.recordFailure(outcome, opPush, record.Key(), err)
				continue
			}
			if err := r.local.Remove(ctx, record.Key()); err != nil {
				r.logError(opPush, scope, err)
				return Local(opPush, err)
			}
			outcome.DeletesConfirmed++
			continue
		}

		if err := r.remote.Upsert(ctx, record); err != nil {
			r.recordFailure(outcome, opPush, record.Key(), err)
			continue
		}
		if err := r.confirmPush(ctx, record, now); err != nil {
			r.logError(opPush, scope, err)
			return Local(opPush, err)
		}
		outcome.Pushed++
	}
	return nil
}

// confirmPush clears the pending flag for a successfully pushed record, unless
// the record was edited or tombstoned again mid-pass, in which case the newer
// transition keeps its flag and is pushed on the next trigger. A tombstone's
// payload is unchanged, so it needs its own check.
func (r *Reconciler[T]) confirmPush(ctx context.Context, pushed T, now time.Time) error {
	current, ok, err := r.local.Get(ctx, pushed.Key())
	if err != nil {
		return err
	}
	if ok && (current.Tombstoned() || !current.EqualPayload(pushed)) {
		return nil
	}
	return r.local.Put(ctx, pushed.MarkSynced(now))
}

func (r *Reconciler[T]) pull(ctx context.Context, scope Scope, full bool, outcome *Outcome) error {
	var remoteRecords []T
	var err error
	if scope.IsOwned() {
		remoteRecords, err = r.remote.FetchByOwner(ctx, scope.OwnerID())
	} else {
		remoteRecords, err = r.remote.FetchAll(ctx)
	}
	if err != nil {
		r.logError(opPull, scope, err)
		return err
	}
	remoteRecords = r.filterOwned(scope, remoteRecords, outcome)

	if full {
		return r.replaceAll(ctx, scope, remoteRecords, outcome)
	}
	return r.mergeAll(ctx, scope, remoteRecords, outcome)
}

func (r *Reconciler[T]) mergeAll(ctx context.Context, scope Scope, remoteRecords []T, outcome *Outcome) error {
	now := r.clock().UTC()
	for _, remoteRecord := range remoteRecords {
		if err := ctx.Err(); err != nil {
			return Transient(opPull, err)
		}

		localRecord, ok, err := r.local.Get(ctx, remoteRecord.Key())
		if err != nil {
			r.logError(opPull, scope, err)
			return Local(opPull, err)
		}
		var localPtr *T
		if ok {
			localPtr = &localRecord
		}
		remoteCopy := remoteRecord

		result := Merge(localPtr, &remoteCopy, r.fields)
		if !result.NeedsLocalWrite && !result.NeedsRemoteWrite {
			outcome.Unchanged++
			continue
		}

		// A merge that only demands a remote write still marks the record
		// pending locally, otherwise the correction is never pushed.
		merged := result.Record
		if result.NeedsRemoteWrite {
			merged = merged.MarkPending()
		} else {
			merged = merged.MarkSynced(now)
		}
		if err := r.local.Put(ctx, merged); err != nil {
			r.logError(opPull, scope, err)
			return Local(opPull, err)
		}
		outcome.Merged++
	}
	return nil
}

// replaceAll implements full resync: the local cache for the scope is cleared
// and repopulated from the already-fetched remote set. Pending records,
// tombstones included, are snapshotted first and re-applied so an offline edit
// is never destroyed by a refresh. The clear happens only after the remote
// fetch has succeeded.
func (r *Reconciler[T]) replaceAll(ctx context.Context, scope Scope, remoteRecords []T, outcome *Outcome) error {
	pending, err := r.outbox.Snapshot(ctx, scope)
	if err != nil {
		r.logError(opPull, scope, err)
		return Local(opPull, err)
	}
	pending = r.filterOwned(scope, pending, outcome)

	pendingByKey := make(map[Key]T, len(pending))
	for _, record := range pending {
		pendingByKey[record.Key()] = record
	}

	if err := r.local.Clear(ctx, scope); err != nil {
		r.logError(opPull, scope, err)
		return Local(opPull, err)
	}

	now := r.clock().UTC()
	replacement := make([]T, 0, len(remoteRecords)+len(pending))
	for _, remoteRecord := range remoteRecords {
		if localPending, ok := pendingByKey[remoteRecord.Key()]; ok {
			remoteCopy := remoteRecord
			result := Merge(&localPending, &remoteCopy, r.fields)
			replacement = append(replacement, result.Record)
			delete(pendingByKey, remoteRecord.Key())
		} else {
			replacement = append(replacement, remoteRecord.MarkSynced(now))
		}
		outcome.Merged++
	}
	for _, record := range pending {
		if _, stillPending := pendingByKey[record.Key()]; stillPending {
			replacement = append(replacement, record)
			outcome.Merged++
		}
	}

	if err := r.local.PutAll(ctx, replacement); err != nil {
		r.logError(opPull, scope, err)
		return Local(opPull, err)
	}
	return nil
}

// filterOwned applies the owner-scope guard on owner-scoped passes.
func (r *Reconciler[T]) filterOwned(scope Scope, records []T, outcome *Outcome) []T {
	if r.guard == nil || !scope.IsOwned() {
		return records
	}
	kept, violations := FilterOwned(r.guard, scope.OwnerID(), records)
	outcome.Violations = append(outcome.Violations, violations...)
	return kept
}

func (r *Reconciler[T]) recordFailure(outcome *Outcome, op string, key Key, err error) {
	class := ClassOf(err)
	outcome.PushFailed++
	outcome.RecordErrors = append(outcome.RecordErrors, RecordError{Key: key, Class: class, Err: err})
	level := r.logger.Warn
	if class == ClassIntegrity {
		level = r.logger.Error
	}
	level("record sync failed",
		zap.String("entity", r.entity.String()),
		zap.String("operation", op),
		zap.String("record_id", key.ID),
		zap.String("owner_id", key.OwnerID),
		zap.String("class", class.String()),
		zap.Error(err))
}

func (r *Reconciler[T]) logError(operation string, scope Scope, err error) {
	r.logger.Error("reconciliation pass failed",
		zap.String("entity", r.entity.String()),
		zap.String("operation", operation),
		zap.String("scope", scope.String()),
		zap.Error(err))
}
