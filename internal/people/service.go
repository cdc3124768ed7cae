package people

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/famling-app/famling/backend/internal/storage"
	"github.com/famling-app/famling/backend/internal/sync"
)

var errMissingDatabase = errors.New("database handle is required")

const opService = "people.service"

// NewStore binds the shared record store to the people table.
func NewStore(db *gorm.DB) (*storage.Store[Person], error) {
	return storage.NewStore[Person](db, storage.StoreConfig{IDColumn: "person_id"})
}

// NewTask wires the person entity class into the sync engine. People are
// shared records, so the field merge is remote-wins and no owner guard applies.
func NewTask(store *storage.Store[Person], remote sync.RemoteStore[Person], logger *zap.Logger) (*sync.Reconciler[Person], error) {
	return sync.NewReconciler(sync.ReconcilerConfig[Person]{
		Entity: EntityType,
		Local:  store,
		Remote: remote,
		Fields: sync.RemoteWins[Person],
		Logger: logger,
	})
}

// ServiceConfig describes the dependencies for local person edits.
type ServiceConfig struct {
	Store      *storage.Store[Person]
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service is the local write path for person records. Writes land in the
// record store first, flagged pending, so the caller is never blocked by the
// network; a later reconciliation pass pushes them.
type Service struct {
	store      *storage.Store[Person]
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, sync.Local(opService, errMissingDatabase)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, idProvider: idProvider, clock: clock, logger: logger}, nil
}

// Save validates and stores a person, flagged pending for the next push. A
// person without an identifier is assigned a fresh one; the stored record is
// returned.
func (s *Service) Save(ctx context.Context, person Person) (Person, error) {
	if person.PersonID == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return Person{}, err
		}
		person.PersonID = id
	}
	if err := person.Validate(); err != nil {
		return Person{}, err
	}
	person = person.MarkPending()
	person.Deleted = false
	if err := s.store.Put(ctx, person); err != nil {
		s.logger.Error("person save failed", zap.String("person_id", person.PersonID), zap.Error(err))
		return Person{}, err
	}
	return person, nil
}

// Delete tombstones a person. The record stays in the local store, pending,
// until the remote delete is confirmed, so a racing pull cannot resurrect it.
func (s *Service) Delete(ctx context.Context, personID string) error {
	key, err := sync.NewKey(personID)
	if err != nil {
		return err
	}
	person, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Error("person lookup failed", zap.String("person_id", personID), zap.Error(err))
		return err
	}
	if !ok {
		return nil
	}
	person.Meta = sync.TombstoneMeta()
	if err := s.store.Put(ctx, person); err != nil {
		s.logger.Error("person tombstone failed", zap.String("person_id", personID), zap.Error(err))
		return err
	}
	return nil
}

// List returns the live (non-tombstoned) people in the local cache.
func (s *Service) List(ctx context.Context) ([]Person, error) {
	records, err := s.store.List(ctx, sync.ScopeAll)
	if err != nil {
		s.logger.Error("people list failed", zap.Error(err))
		return nil, err
	}
	live := make([]Person, 0, len(records))
	for _, person := range records {
		if person.Tombstoned() {
			continue
		}
		live = append(live, person)
	}
	return live, nil
}
