package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"go.uber.org/zap"
)

const defaultMaxCheckpointAge = 7 * 24 * time.Hour

var errNoTasks = errors.New("at least one reconciliation task is required")

// EventKind classifies trigger-surface events.
type EventKind int

const (
	// EventStarted marks the beginning of one entity type's pass.
	EventStarted EventKind = iota
	// EventCompleted marks a finished pass; the Outcome carries per-record results.
	EventCompleted
	// EventFailed marks an abandoned pass; local state was preserved.
	EventFailed
	// EventCoalesced marks a trigger dropped because a pass for the same
	// entity type and scope was already running.
	EventCoalesced
)

// String names the event kind for logs and UI surfaces.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCoalesced:
		return "coalesced"
	default:
		return "unknown"
	}
}

// Event is one progress/outcome emission from a sync trigger.
type Event struct {
	Kind    EventKind
	Entity  EntityType
	Scope   Scope
	Full    bool
	Outcome Outcome
	Err     error
}

// Task is one entity type's reconciler, type-erased so the Manager can drive a
// heterogeneous set of entity classes.
type Task interface {
	Entity() EntityType
	// OwnerScoped reports whether passes for this entity are partitioned by
	// owner. A shared entity runs every pass under ScopeAll, so overlapping
	// triggers must coalesce regardless of the requested owner.
	OwnerScoped() bool
	Reconcile(ctx context.Context, scope Scope, full bool) (Outcome, error)
}

// ManagerConfig wires the trigger surface.
type ManagerConfig struct {
	Tasks       []Task
	Checkpoints CheckpointStore
	// MaxCheckpointAge bounds how stale the last full resync may be before an
	// incremental trigger escalates to a full one.
	MaxCheckpointAge time.Duration
	Clock            func() time.Time
	Logger           *zap.Logger
}

// Manager exposes the sync trigger surface to the rest of the app. Overlapping
// triggers for the same entity type and scope are coalesced: two concurrent
// passes over the same pending flags would race and double-push or drop a push.
type Manager struct {
	tasks       []Task
	checkpoints CheckpointStore
	maxAge      time.Duration
	clock       func() time.Time
	logger      *zap.Logger

	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

// NewManager validates the configuration and constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Tasks) == 0 {
		return nil, Local("sync.manager", errNoTasks)
	}
	maxAge := cfg.MaxCheckpointAge
	if maxAge <= 0 {
		maxAge = defaultMaxCheckpointAge
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Manager{
		tasks:       cfg.Tasks,
		checkpoints: cfg.Checkpoints,
		maxAge:      maxAge,
		clock:       clock,
		logger:      logger,
		locks:       make(map[string]*stdsync.Mutex),
	}, nil
}

// SyncIncremental triggers a reconciliation pass for every registered entity
// type within scope and streams progress events. The channel is closed once
// all passes finish. forceFull, a missing checkpoint, or a checkpoint older
// than the configured maximum each escalate a task to a full resync.
func (m *Manager) SyncIncremental(ctx context.Context, scope Scope, forceFull bool) <-chan Event {
	events := make(chan Event, len(m.tasks)*3)
	go func() {
		defer close(events)
		var wg stdsync.WaitGroup
		for _, task := range m.tasks {
			wg.Add(1)
			go func(task Task) {
				defer wg.Done()
				m.runTask(ctx, task, scope, forceFull, events)
			}(task)
		}
		wg.Wait()
	}()
	return events
}

// ClearSyncCheckpoint forces the next incremental sync for the entity type to
// behave as a full resync. An empty entity type clears every checkpoint.
func (m *Manager) ClearSyncCheckpoint(ctx context.Context, entity EntityType) error {
	if m.checkpoints == nil {
		return nil
	}
	return m.checkpoints.Clear(ctx, entity)
}

func (m *Manager) runTask(ctx context.Context, task Task, scope Scope, forceFull bool, events chan<- Event) {
	entity := task.Entity()
	if !task.OwnerScoped() {
		scope = ScopeAll
	}
	lock := m.lockFor(entity, scope)
	if !lock.TryLock() {
		events <- Event{Kind: EventCoalesced, Entity: entity, Scope: scope}
		return
	}
	defer lock.Unlock()

	full := forceFull || m.needsFull(ctx, entity)
	events <- Event{Kind: EventStarted, Entity: entity, Scope: scope, Full: full}

	outcome, err := task.Reconcile(ctx, scope, full)
	if err != nil {
		m.logger.Warn("sync pass abandoned",
			zap.String("entity", entity.String()),
			zap.String("scope", scope.String()),
			zap.Bool("full", full),
			zap.Error(err))
		events <- Event{Kind: EventFailed, Entity: entity, Scope: scope, Full: full, Outcome: outcome, Err: err}
		return
	}

	m.saveCheckpoint(ctx, entity, full)
	events <- Event{Kind: EventCompleted, Entity: entity, Scope: scope, Full: full, Outcome: outcome}
}

func (m *Manager) lockFor(entity EntityType, scope Scope) *stdsync.Mutex {
	key := entity.String() + "|" + scope.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &stdsync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

func (m *Manager) needsFull(ctx context.Context, entity EntityType) bool {
	if m.checkpoints == nil {
		return false
	}
	checkpoint, ok, err := m.checkpoints.Load(ctx, entity)
	if err != nil {
		m.logger.Warn("checkpoint load failed", zap.String("entity", entity.String()), zap.Error(err))
		return false
	}
	if !ok || checkpoint.LastFullSeconds == 0 {
		return true
	}
	age := m.clock().UTC().Unix() - checkpoint.LastFullSeconds
	return age > int64(m.maxAge.Seconds())
}

func (m *Manager) saveCheckpoint(ctx context.Context, entity EntityType, full bool) {
	if m.checkpoints == nil {
		return
	}
	now := m.clock().UTC().Unix()
	checkpoint, ok, err := m.checkpoints.Load(ctx, entity)
	if err != nil {
		m.logger.Warn("checkpoint load failed", zap.String("entity", entity.String()), zap.Error(err))
		return
	}
	if !ok {
		checkpoint = Checkpoint{Entity: entity.String()}
	}
	checkpoint.LastSyncSeconds = now
	if full {
		checkpoint.LastFullSeconds = now
	}
	if err := m.checkpoints.Save(ctx, checkpoint); err != nil {
		m.logger.Warn("checkpoint save failed", zap.String("entity", entity.String()), zap.Error(err))
	}
}
