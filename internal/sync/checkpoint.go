package sync

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Checkpoint records the last completed passes for one entity type so the
// incremental-vs-full decision survives process restarts.
type Checkpoint struct {
	Entity           string `gorm:"column:entity;primaryKey;size:190;not null"`
	LastSyncSeconds  int64  `gorm:"column:last_sync_s;not null;default:0"`
	LastFullSeconds  int64  `gorm:"column:last_full_s;not null;default:0"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Checkpoint) TableName() string {
	return "sync_checkpoints"
}

// CheckpointStore persists sync checkpoints.
type CheckpointStore interface {
	// Load returns the checkpoint for the entity type, reporting whether one
	// exists.
	Load(ctx context.Context, entity EntityType) (Checkpoint, bool, error)
	// Save upserts the checkpoint for the entity type.
	Save(ctx context.Context, checkpoint Checkpoint) error
	// Clear removes the checkpoint so the next incremental sync behaves as a
	// full resync. An empty entity type clears every checkpoint.
	Clear(ctx context.Context, entity EntityType) error
}

type gormCheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore returns a CheckpointStore backed by the local database.
func NewCheckpointStore(db *gorm.DB) (CheckpointStore, error) {
	if db == nil {
		return nil, Local("sync.checkpoints", errMissingDatabase)
	}
	return &gormCheckpointStore{db: db}, nil
}

var errMissingDatabase = errors.New("database handle is required")

func (s *gormCheckpointStore) Load(ctx context.Context, entity EntityType) (Checkpoint, bool, error) {
	var checkpoint Checkpoint
	err := s.db.WithContext(ctx).
		Where("entity = ?", entity.String()).
		Take(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, Local("sync.checkpoints", err)
	}
	return checkpoint, true, nil
}

func (s *gormCheckpointStore) Save(ctx context.Context, checkpoint Checkpoint) error {
	checkpoint.UpdatedAtSeconds = time.Now().UTC().Unix()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity"}},
			UpdateAll: true,
		}).
		Create(&checkpoint).Error
	if err != nil {
		return Local("sync.checkpoints", err)
	}
	return nil
}

func (s *gormCheckpointStore) Clear(ctx context.Context, entity EntityType) error {
	query := s.db.WithContext(ctx)
	if entity != "" {
		query = query.Where("entity = ?", entity.String())
	} else {
		query = query.Where("1 = 1")
	}
	if err := query.Delete(&Checkpoint{}).Error; err != nil {
		return Local("sync.checkpoints", err)
	}
	return nil
}
