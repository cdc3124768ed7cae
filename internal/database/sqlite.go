package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/famling-app/famling/backend/internal/achievements"
	"github.com/famling-app/famling/backend/internal/familia"
	"github.com/famling-app/famling/backend/internal/people"
	"github.com/famling-app/famling/backend/internal/server"
	"github.com/famling-app/famling/backend/internal/sync"
)

// OpenAgent establishes the agent-side SQLite cache and performs schema
// migrations for every syncable entity table.
func OpenAgent(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&people.Person{},
		&familia.BlacklistEntry{},
		&familia.CustomFamilyName{},
		&achievements.Progress{},
		&achievements.Profile{},
		&sync.Checkpoint{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, agentMigrations(), logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("agent database initialized", zap.String("path", path))
	}
	return db, nil
}

// OpenServer establishes the document-store SQLite database.
func OpenServer(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&server.Document{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("server database initialized", zap.String("path", path))
	}
	return db, nil
}

func open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
