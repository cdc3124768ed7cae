// Package storage provides the gorm-backed record store shared by every
// syncable entity class. The engine sees it through the sync.LocalStore
// contract; entity packages bind it to their model and key columns.
package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/famling-app/famling/backend/internal/sync"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingIDColumn = errors.New("id column is required")
)

const opStore = "storage.records"

// StoreConfig binds a record store to one entity table.
type StoreConfig struct {
	// IDColumn is the column holding the record identifier.
	IDColumn string
	// OwnerColumn is the column holding the owner identifier for owner-scoped
	// entities, empty for shared entities.
	OwnerColumn string
}

// Store is a sync.LocalStore implementation over a gorm table.
type Store[T sync.Record[T]] struct {
	db          *gorm.DB
	idColumn    string
	ownerColumn string
}

// NewStore validates the configuration and constructs a Store.
func NewStore[T sync.Record[T]](db *gorm.DB, cfg StoreConfig) (*Store[T], error) {
	if db == nil {
		return nil, sync.Local(opStore, errMissingDatabase)
	}
	if cfg.IDColumn == "" {
		return nil, sync.Local(opStore, errMissingIDColumn)
	}
	return &Store[T]{db: db, idColumn: cfg.IDColumn, ownerColumn: cfg.OwnerColumn}, nil
}

// Get fetches one record by key.
func (s *Store[T]) Get(ctx context.Context, key sync.Key) (T, bool, error) {
	var record T
	query := s.db.WithContext(ctx).Where(s.idColumn+" = ?", key.ID)
	if s.ownerColumn != "" {
		query = query.Where(s.ownerColumn+" = ?", key.OwnerID)
	}
	err := query.Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, sync.Local(opStore, err)
	}
	return record, true, nil
}

// Put upserts one record.
func (s *Store[T]) Put(ctx context.Context, record T) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return sync.Local(opStore, err)
	}
	return nil
}

// PutAll upserts a batch of records.
func (s *Store[T]) PutAll(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error
	if err != nil {
		return sync.Local(opStore, err)
	}
	return nil
}

// Remove physically deletes one record.
func (s *Store[T]) Remove(ctx context.Context, key sync.Key) error {
	query := s.db.WithContext(ctx).Where(s.idColumn+" = ?", key.ID)
	if s.ownerColumn != "" {
		query = query.Where(s.ownerColumn+" = ?", key.OwnerID)
	}
	if err := query.Delete(new(T)).Error; err != nil {
		return sync.Local(opStore, err)
	}
	return nil
}

// Clear physically deletes every record within scope.
func (s *Store[T]) Clear(ctx context.Context, scope sync.Scope) error {
	query, err := s.scoped(ctx, scope)
	if err != nil {
		return err
	}
	if !scope.IsOwned() {
		query = query.Where("1 = 1")
	}
	if err := query.Delete(new(T)).Error; err != nil {
		return sync.Local(opStore, err)
	}
	return nil
}

// List returns every record within scope.
func (s *Store[T]) List(ctx context.Context, scope sync.Scope) ([]T, error) {
	query, err := s.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	var records []T
	if err := query.Order(s.idColumn + " ASC").Find(&records).Error; err != nil {
		return nil, sync.Local(opStore, err)
	}
	return records, nil
}

// ListPending returns the records within scope awaiting a remote write.
func (s *Store[T]) ListPending(ctx context.Context, scope sync.Scope) ([]T, error) {
	query, err := s.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	var records []T
	if err := query.Where("pending_sync = ?", true).Order(s.idColumn + " ASC").Find(&records).Error; err != nil {
		return nil, sync.Local(opStore, err)
	}
	return records, nil
}

func (s *Store[T]) scoped(ctx context.Context, scope sync.Scope) (*gorm.DB, error) {
	query := s.db.WithContext(ctx)
	if scope.IsOwned() {
		if s.ownerColumn == "" {
			return nil, sync.Local(opStore, fmt.Errorf("owner scope %q on an unscoped entity", scope.OwnerID()))
		}
		query = query.Where(s.ownerColumn+" = ?", scope.OwnerID())
	}
	return query, nil
}
