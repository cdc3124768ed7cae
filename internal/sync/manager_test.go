package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"
)

// fakeTask records reconcile invocations and optionally blocks until released.
type fakeTask struct {
	entity  EntityType
	shared  bool
	err     error
	block   chan struct{}
	started chan struct{}

	mu    stdsync.Mutex
	calls []bool // full flag per call
}

func newFakeTask(entity EntityType) *fakeTask {
	return &fakeTask{entity: entity}
}

func (t *fakeTask) Entity() EntityType {
	return t.entity
}

func (t *fakeTask) OwnerScoped() bool {
	return !t.shared
}

func (t *fakeTask) Reconcile(_ context.Context, scope Scope, full bool) (Outcome, error) {
	t.mu.Lock()
	t.calls = append(t.calls, full)
	if t.started != nil {
		close(t.started)
		t.started = nil
	}
	t.mu.Unlock()
	if t.block != nil {
		<-t.block
	}
	if t.err != nil {
		return Outcome{Entity: t.entity, Scope: scope, Full: full}, t.err
	}
	return Outcome{Entity: t.entity, Scope: scope, Full: full, Pushed: 1}, nil
}

func (t *fakeTask) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *fakeTask) lastFull(testingT *testing.T) bool {
	testingT.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.calls) == 0 {
		testingT.Fatalf("task was never reconciled")
	}
	return t.calls[len(t.calls)-1]
}

// memCheckpoints is an in-memory CheckpointStore.
type memCheckpoints struct {
	mu      stdsync.Mutex
	records map[string]Checkpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{records: make(map[string]Checkpoint)}
}

func (s *memCheckpoints) Load(_ context.Context, entity EntityType) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoint, ok := s.records[entity.String()]
	return checkpoint, ok, nil
}

func (s *memCheckpoints) Save(_ context.Context, checkpoint Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[checkpoint.Entity] = checkpoint
	return nil
}

func (s *memCheckpoints) Clear(_ context.Context, entity EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entity == "" {
		s.records = make(map[string]Checkpoint)
		return nil
	}
	delete(s.records, entity.String())
	return nil
}

func collectEvents(t *testing.T, events <-chan Event) map[EventKind][]Event {
	t.Helper()
	collected := make(map[EventKind][]Event)
	for event := range events {
		collected[event.Kind] = append(collected[event.Kind], event)
	}
	return collected
}

func newTestManager(t *testing.T, checkpoints CheckpointStore, now time.Time, tasks ...Task) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{
		Tasks:            tasks,
		Checkpoints:      checkpoints,
		MaxCheckpointAge: 24 * time.Hour,
		Clock:            func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	return manager
}

func TestNewManagerRequiresTasks(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err == nil {
		t.Fatalf("expected an error for an empty task set")
	}
}

func TestSyncIncrementalRunsEveryTask(t *testing.T) {
	now := time.Unix(1700000600, 0)
	taskA := newFakeTask("people")
	taskB := newFakeTask("achievement_progress")
	manager := newTestManager(t, newMemCheckpoints(), now, taskA, taskB)

	events := collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))

	if len(events[EventStarted]) != 2 || len(events[EventCompleted]) != 2 {
		t.Fatalf("started = %d completed = %d, want 2 and 2",
			len(events[EventStarted]), len(events[EventCompleted]))
	}
	if taskA.callCount() != 1 || taskB.callCount() != 1 {
		t.Fatalf("tasks reconciled %d and %d times, want 1 and 1", taskA.callCount(), taskB.callCount())
	}
}

func TestSyncIncrementalNoCheckpointEscalatesToFull(t *testing.T) {
	now := time.Unix(1700000600, 0)
	task := newFakeTask("people")
	manager := newTestManager(t, newMemCheckpoints(), now, task)

	collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))

	if !task.lastFull(t) {
		t.Fatalf("a missing checkpoint must escalate to a full resync")
	}
}

func TestSyncIncrementalFreshCheckpointStaysIncremental(t *testing.T) {
	now := time.Unix(1700000600, 0)
	checkpoints := newMemCheckpoints()
	checkpoints.records["people"] = Checkpoint{
		Entity:          "people",
		LastSyncSeconds: now.Unix() - 60,
		LastFullSeconds: now.Unix() - 3600,
	}
	task := newFakeTask("people")
	manager := newTestManager(t, checkpoints, now, task)

	collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))

	if task.lastFull(t) {
		t.Fatalf("a fresh checkpoint must not escalate to a full resync")
	}
}

func TestSyncIncrementalStaleCheckpointEscalatesToFull(t *testing.T) {
	now := time.Unix(1700000600, 0)
	checkpoints := newMemCheckpoints()
	checkpoints.records["people"] = Checkpoint{
		Entity:          "people",
		LastSyncSeconds: now.Unix() - 60,
		LastFullSeconds: now.Add(-48 * time.Hour).Unix(),
	}
	task := newFakeTask("people")
	manager := newTestManager(t, checkpoints, now, task)

	collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))

	if !task.lastFull(t) {
		t.Fatalf("a checkpoint older than the maximum age must escalate to a full resync")
	}
}

func TestSyncIncrementalForceFull(t *testing.T) {
	now := time.Unix(1700000600, 0)
	checkpoints := newMemCheckpoints()
	checkpoints.records["people"] = Checkpoint{
		Entity:          "people",
		LastFullSeconds: now.Unix() - 60,
	}
	task := newFakeTask("people")
	manager := newTestManager(t, checkpoints, now, task)

	collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, true))

	if !task.lastFull(t) {
		t.Fatalf("forceFull must run a full resync regardless of the checkpoint")
	}
}

func TestSyncIncrementalUpdatesCheckpoint(t *testing.T) {
	now := time.Unix(1700000600, 0)
	checkpoints := newMemCheckpoints()
	task := newFakeTask("people")
	manager := newTestManager(t, checkpoints, now, task)

	collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))

	checkpoint, ok, _ := checkpoints.Load(context.Background(), "people")
	if !ok {
		t.Fatalf("completed pass must persist a checkpoint")
	}
	if checkpoint.LastSyncSeconds != now.Unix() || checkpoint.LastFullSeconds != now.Unix() {
		t.Fatalf("unexpected checkpoint: %+v", checkpoint)
	}
}

func TestSyncIncrementalFailedPassKeepsCheckpoint(t *testing.T) {
	now := time.Unix(1700000600, 0)
	checkpoints := newMemCheckpoints()
	task := newFakeTask("people")
	task.err = Transient("remote.fetch", errors.New("unreachable"))
	manager := newTestManager(t, checkpoints, now, task)

	events := collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))

	if len(events[EventFailed]) != 1 {
		t.Fatalf("expected one failed event, got %+v", events)
	}
	if _, ok, _ := checkpoints.Load(context.Background(), "people"); ok {
		t.Fatalf("an abandoned pass must not advance the checkpoint")
	}
}

func TestSyncIncrementalCoalescesOverlappingTriggers(t *testing.T) {
	now := time.Unix(1700000600, 0)
	task := newFakeTask("people")
	task.block = make(chan struct{})
	task.started = make(chan struct{})
	started := task.started
	manager := newTestManager(t, newMemCheckpoints(), now, task)

	first := manager.SyncIncremental(context.Background(), ScopeAll, false)
	<-started

	second := collectEvents(t, manager.SyncIncremental(context.Background(), ScopeAll, false))
	if len(second[EventCoalesced]) != 1 {
		t.Fatalf("expected the overlapping trigger to coalesce, got %+v", second)
	}

	close(task.block)
	firstEvents := collectEvents(t, first)
	if len(firstEvents[EventCompleted]) != 1 {
		t.Fatalf("expected the first trigger to complete, got %+v", firstEvents)
	}
	if task.callCount() != 1 {
		t.Fatalf("coalesced trigger must not reconcile, got %d calls", task.callCount())
	}
}

func TestSyncIncrementalSharedEntityCoalescesAcrossOwners(t *testing.T) {
	now := time.Unix(1700000600, 0)
	task := newFakeTask("people")
	task.shared = true
	task.block = make(chan struct{})
	task.started = make(chan struct{})
	started := task.started
	manager := newTestManager(t, newMemCheckpoints(), now, task)

	first := manager.SyncIncremental(context.Background(), mustOwnerScope(t, "alice"), false)
	<-started

	second := collectEvents(t, manager.SyncIncremental(context.Background(), mustOwnerScope(t, "bob"), false))
	if len(second[EventCoalesced]) != 1 {
		t.Fatalf("shared-entity triggers for different owners must coalesce, got %+v", second)
	}

	close(task.block)
	firstEvents := collectEvents(t, first)
	if len(firstEvents[EventCompleted]) != 1 {
		t.Fatalf("expected the first trigger to complete, got %+v", firstEvents)
	}
	if got := firstEvents[EventStarted][0].Scope; got.IsOwned() {
		t.Fatalf("shared-entity pass must run under the all scope, got %q", got)
	}
	if task.callCount() != 1 {
		t.Fatalf("coalesced trigger must not reconcile, got %d calls", task.callCount())
	}
}

func TestSyncIncrementalDifferentScopesDoNotCoalesce(t *testing.T) {
	now := time.Unix(1700000600, 0)
	task := newFakeTask("achievement_progress")
	task.block = make(chan struct{})
	task.started = make(chan struct{})
	started := task.started
	manager := newTestManager(t, newMemCheckpoints(), now, task)

	first := manager.SyncIncremental(context.Background(), mustOwnerScope(t, "alice"), false)
	<-started
	second := manager.SyncIncremental(context.Background(), mustOwnerScope(t, "bob"), false)

	close(task.block)
	firstEvents := collectEvents(t, first)
	secondEvents := collectEvents(t, second)

	if len(firstEvents[EventCoalesced]) != 0 || len(secondEvents[EventCoalesced]) != 0 {
		t.Fatalf("triggers for different owners must not coalesce: %+v %+v", firstEvents, secondEvents)
	}
	if task.callCount() != 2 {
		t.Fatalf("expected both scoped triggers to reconcile, got %d calls", task.callCount())
	}
}

func TestClearSyncCheckpoint(t *testing.T) {
	now := time.Unix(1700000600, 0)
	checkpoints := newMemCheckpoints()
	checkpoints.records["people"] = Checkpoint{Entity: "people", LastFullSeconds: now.Unix()}
	checkpoints.records["familia_names"] = Checkpoint{Entity: "familia_names", LastFullSeconds: now.Unix()}
	task := newFakeTask("people")
	manager := newTestManager(t, checkpoints, now, task)

	if err := manager.ClearSyncCheckpoint(context.Background(), "people"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := checkpoints.Load(context.Background(), "people"); ok {
		t.Fatalf("checkpoint was not cleared")
	}
	if _, ok, _ := checkpoints.Load(context.Background(), "familia_names"); !ok {
		t.Fatalf("unrelated checkpoint was cleared")
	}

	if err := manager.ClearSyncCheckpoint(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := checkpoints.Load(context.Background(), "familia_names"); ok {
		t.Fatalf("empty entity must clear every checkpoint")
	}
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{kind: EventStarted, want: "started"},
		{kind: EventCompleted, want: "completed"},
		{kind: EventFailed, want: "failed"},
		{kind: EventCoalesced, want: "coalesced"},
		{kind: EventKind(42), want: "unknown"},
	}
	for _, testCase := range tests {
		if got := testCase.kind.String(); got != testCase.want {
			t.Fatalf("EventKind(%d).String() = %q, want %q", testCase.kind, got, testCase.want)
		}
	}
}
