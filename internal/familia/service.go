package familia

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/famling-app/famling/backend/internal/storage"
	"github.com/famling-app/famling/backend/internal/sync"
)

var errMissingStores = errors.New("blacklist and custom name stores are required")

const opService = "familia.service"

// NewBlacklistStore binds the shared record store to the blacklist table.
func NewBlacklistStore(db *gorm.DB) (*storage.Store[BlacklistEntry], error) {
	return storage.NewStore[BlacklistEntry](db, storage.StoreConfig{IDColumn: "familia_id"})
}

// NewCustomNameStore binds the shared record store to the custom names table.
func NewCustomNameStore(db *gorm.DB) (*storage.Store[CustomFamilyName], error) {
	return storage.NewStore[CustomFamilyName](db, storage.StoreConfig{IDColumn: "familia_id"})
}

// NewBlacklistTask wires the blacklist entity class into the sync engine.
func NewBlacklistTask(store *storage.Store[BlacklistEntry], remote sync.RemoteStore[BlacklistEntry], logger *zap.Logger) (*sync.Reconciler[BlacklistEntry], error) {
	return sync.NewReconciler(sync.ReconcilerConfig[BlacklistEntry]{
		Entity: BlacklistEntityType,
		Local:  store,
		Remote: remote,
		Fields: sync.RemoteWins[BlacklistEntry],
		Logger: logger,
	})
}

// NewCustomNameTask wires the custom name entity class into the sync engine.
func NewCustomNameTask(store *storage.Store[CustomFamilyName], remote sync.RemoteStore[CustomFamilyName], logger *zap.Logger) (*sync.Reconciler[CustomFamilyName], error) {
	return sync.NewReconciler(sync.ReconcilerConfig[CustomFamilyName]{
		Entity: CustomNameEntityType,
		Local:  store,
		Remote: remote,
		Fields: sync.RemoteWins[CustomFamilyName],
		Logger: logger,
	})
}

// ServiceConfig describes the dependencies for local familia edits.
type ServiceConfig struct {
	Blacklist   *storage.Store[BlacklistEntry]
	CustomNames *storage.Store[CustomFamilyName]
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Service is the local write path for familia settings.
type Service struct {
	blacklist   *storage.Store[BlacklistEntry]
	customNames *storage.Store[CustomFamilyName]
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Blacklist == nil || cfg.CustomNames == nil {
		return nil, sync.Local(opService, errMissingStores)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{blacklist: cfg.Blacklist, customNames: cfg.CustomNames, clock: clock, logger: logger}, nil
}

// Exclude adds a familia to the blacklist, flagged pending for the next push.
func (s *Service) Exclude(ctx context.Context, familiaID string) error {
	if err := validateFamiliaID(familiaID); err != nil {
		return err
	}
	entry := BlacklistEntry{FamiliaID: strings.TrimSpace(familiaID), Meta: sync.PendingMeta()}
	if err := s.blacklist.Put(ctx, entry); err != nil {
		s.logger.Error("blacklist save failed", zap.String("familia_id", entry.FamiliaID), zap.Error(err))
		return err
	}
	return nil
}

// Include tombstones a blacklist entry so the exclusion is lifted once the
// remote delete is confirmed.
func (s *Service) Include(ctx context.Context, familiaID string) error {
	if err := validateFamiliaID(familiaID); err != nil {
		return err
	}
	key := sync.Key{ID: strings.TrimSpace(familiaID)}
	entry, ok, err := s.blacklist.Get(ctx, key)
	if err != nil {
		s.logger.Error("blacklist lookup failed", zap.String("familia_id", key.ID), zap.Error(err))
		return err
	}
	if !ok {
		return nil
	}
	entry.Meta = sync.TombstoneMeta()
	if err := s.blacklist.Put(ctx, entry); err != nil {
		s.logger.Error("blacklist tombstone failed", zap.String("familia_id", key.ID), zap.Error(err))
		return err
	}
	return nil
}

// Excluded returns the live blacklist.
func (s *Service) Excluded(ctx context.Context) ([]BlacklistEntry, error) {
	entries, err := s.blacklist.List(ctx, sync.ScopeAll)
	if err != nil {
		s.logger.Error("blacklist list failed", zap.Error(err))
		return nil, err
	}
	live := make([]BlacklistEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Tombstoned() {
			continue
		}
		live = append(live, entry)
	}
	return live, nil
}

// Rename stores a custom display name for a familia, flagged pending.
func (s *Service) Rename(ctx context.Context, familiaID, name string) error {
	if err := validateFamiliaID(familiaID); err != nil {
		return err
	}
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return ErrInvalidCustomName
	}
	record := CustomFamilyName{
		FamiliaID: strings.TrimSpace(familiaID),
		Name:      trimmedName,
		Meta:      sync.PendingMeta(),
	}
	if err := s.customNames.Put(ctx, record); err != nil {
		s.logger.Error("custom name save failed", zap.String("familia_id", record.FamiliaID), zap.Error(err))
		return err
	}
	return nil
}

// ClearName tombstones a custom display name.
func (s *Service) ClearName(ctx context.Context, familiaID string) error {
	if err := validateFamiliaID(familiaID); err != nil {
		return err
	}
	key := sync.Key{ID: strings.TrimSpace(familiaID)}
	record, ok, err := s.customNames.Get(ctx, key)
	if err != nil {
		s.logger.Error("custom name lookup failed", zap.String("familia_id", key.ID), zap.Error(err))
		return err
	}
	if !ok {
		return nil
	}
	record.Meta = sync.TombstoneMeta()
	if err := s.customNames.Put(ctx, record); err != nil {
		s.logger.Error("custom name tombstone failed", zap.String("familia_id", key.ID), zap.Error(err))
		return err
	}
	return nil
}

// Names returns the live custom family names keyed by familia id.
func (s *Service) Names(ctx context.Context) (map[string]string, error) {
	records, err := s.customNames.List(ctx, sync.ScopeAll)
	if err != nil {
		s.logger.Error("custom name list failed", zap.Error(err))
		return nil, err
	}
	names := make(map[string]string, len(records))
	for _, record := range records {
		if record.Tombstoned() {
			continue
		}
		names[record.FamiliaID] = record.Name
	}
	return names, nil
}
