package achievements

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/famling-app/famling/backend/internal/storage"
	"github.com/famling-app/famling/backend/internal/sync"
)

var (
	errMissingStore    = errors.New("progress store is required")
	errMissingDatabase = errors.New("database handle is required")
)

const (
	opRecord    = "achievements.record"
	opRecompute = "achievements.recompute_profile"
	opService   = "achievements.service"
)

// NewStore binds the shared record store to the achievement progress table.
func NewStore(db *gorm.DB) (*storage.Store[Progress], error) {
	return storage.NewStore[Progress](db, storage.StoreConfig{
		IDColumn:    "achievement_id",
		OwnerColumn: "owner_id",
	})
}

// NewTask wires achievement progress into the sync engine: monotonic field
// merging, the owner-scope guard on every boundary, and the derived profile
// recompute after each pull.
func NewTask(store *storage.Store[Progress], remote sync.RemoteStore[Progress], service *Service, logger *zap.Logger) (*sync.Reconciler[Progress], error) {
	return sync.NewReconciler(sync.ReconcilerConfig[Progress]{
		Entity:    EntityType,
		Local:     store,
		Remote:    remote,
		Fields:    FieldMerger(service.catalog),
		Guard:     sync.NewGuard(EntityType, logger),
		Recompute: service.recomputeScope,
		Logger:    logger,
	})
}

// ServiceConfig describes the dependencies for gamification progress tracking.
type ServiceConfig struct {
	Store   *storage.Store[Progress]
	Catalog Catalog
	// Database persists the derived profile aggregate.
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the local write path for achievement progress and the owner of
// the derived gamification profile. Every call takes the owner id explicitly;
// nothing here reads ambient session state.
type Service struct {
	store   *storage.Store[Progress]
	catalog Catalog
	db      *gorm.DB
	guard   *sync.Guard
	clock   func() time.Time
	logger  *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, sync.Local(opService, errMissingStore)
	}
	if cfg.Database == nil {
		return nil, sync.Local(opService, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   cfg.Store,
		catalog: cfg.Catalog,
		db:      cfg.Database,
		guard:   sync.NewGuard(EntityType, logger),
		clock:   clock,
		logger:  logger,
	}, nil
}

// Record advances the owner's progress toward an achievement and unlocks it
// once the catalog target is reached. Unlocks are monotonic; recording against
// an unlocked achievement is a no-op. The updated record is flagged pending
// and the derived profile is recomputed.
func (s *Service) Record(ctx context.Context, ownerID, achievementID string, increment int) (Progress, error) {
	key, err := sync.NewOwnedKey(ownerID, achievementID)
	if err != nil {
		return Progress{}, err
	}
	definition, ok := s.catalog.Lookup(key.ID)
	if !ok {
		return Progress{}, ErrUnknownAchievement
	}
	if increment < 0 {
		increment = 0
	}

	progress, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logError(opRecord, key.OwnerID, err)
		return Progress{}, err
	}
	if !found {
		progress = Progress{
			OwnerID:        key.OwnerID,
			AchievementID:  key.ID,
			ProgressTarget: definition.Target,
		}
	}
	if progress.Unlocked {
		return progress, nil
	}

	progress.ProgressCurrent += increment
	progress.ProgressTarget = definition.Target
	if progress.ProgressCurrent >= definition.Target {
		progress.Unlocked = true
		progress.UnlockedAtSeconds = s.clock().UTC().Unix()
		progress.RewardPoints = definition.RewardPoints
	}
	progress = progress.MarkPending()

	if err := s.store.Put(ctx, progress); err != nil {
		s.logError(opRecord, key.OwnerID, err)
		return Progress{}, err
	}
	if err := s.RecomputeProfile(ctx, key.OwnerID); err != nil {
		return Progress{}, err
	}
	return progress, nil
}

// ListProgress returns the owner's live progress records.
func (s *Service) ListProgress(ctx context.Context, ownerID string) ([]Progress, error) {
	scope, err := sync.OwnerScope(ownerID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.List(ctx, scope)
	if err != nil {
		s.logError(opService, ownerID, err)
		return nil, err
	}
	live := make([]Progress, 0, len(records))
	for _, record := range records {
		if record.Tombstoned() {
			continue
		}
		live = append(live, record)
	}
	return live, nil
}

// Profile returns the owner's derived gamification profile.
func (s *Service) Profile(ctx context.Context, ownerID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{OwnerID: ownerID, Level: 1}, nil
	}
	if err != nil {
		s.logError(opService, ownerID, err)
		return Profile{}, sync.Local(opService, err)
	}
	return profile, nil
}

// RecomputeProfile rebuilds the derived aggregate from the owner's reconciled
// progress records: totalXp is the sum of reward points over unlocked records,
// the level follows from totalXp, and the profile is persisted only when it
// changed. Records failing the owner guard never contribute.
func (s *Service) RecomputeProfile(ctx context.Context, ownerID string) error {
	scope, err := sync.OwnerScope(ownerID)
	if err != nil {
		return err
	}
	records, err := s.store.List(ctx, scope)
	if err != nil {
		s.logError(opRecompute, ownerID, err)
		return err
	}
	records, _ = sync.FilterOwned(s.guard, ownerID, records)

	totalXP := 0
	unlockedCount := 0
	for _, record := range records {
		if record.Tombstoned() || !record.Unlocked {
			continue
		}
		totalXP += record.RewardPoints
		unlockedCount++
	}

	current, err := s.Profile(ctx, ownerID)
	if err != nil {
		return err
	}
	next := Profile{
		OwnerID:       ownerID,
		TotalXP:       totalXP,
		Level:         LevelForXP(totalXP),
		UnlockedCount: unlockedCount,
	}
	if current.TotalXP == next.TotalXP &&
		current.Level == next.Level &&
		current.UnlockedCount == next.UnlockedCount &&
		current.UpdatedAtSeconds != 0 {
		return nil
	}
	next.UpdatedAtSeconds = s.clock().UTC().Unix()

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			UpdateAll: true,
		}).
		Create(&next).Error
	if err != nil {
		s.logError(opRecompute, ownerID, err)
		return sync.Local(opRecompute, err)
	}
	return nil
}

// recomputeScope adapts RecomputeProfile to the reconciler's recompute hook.
// An unscoped pass rebuilds every owner present in the local store.
func (s *Service) recomputeScope(ctx context.Context, scope sync.Scope) error {
	if scope.IsOwned() {
		return s.RecomputeProfile(ctx, scope.OwnerID())
	}
	records, err := s.store.List(ctx, sync.ScopeAll)
	if err != nil {
		s.logError(opRecompute, "", err)
		return err
	}
	seen := make(map[string]struct{})
	for _, record := range records {
		if _, done := seen[record.OwnerID]; done {
			continue
		}
		seen[record.OwnerID] = struct{}{}
		if err := s.RecomputeProfile(ctx, record.OwnerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) logError(operation, ownerID string, err error) {
	s.logger.Error("achievements service error",
		zap.String("operation", operation),
		zap.String("owner_id", ownerID),
		zap.Error(err))
}
