// Package familia holds the shared per-family settings records: the
// excluded-family blacklist and custom family display names. Both are simple
// records keyed by the familia identifier, with remote-wins merging once no
// local edit is outstanding.
package familia

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/famling-app/famling/backend/internal/sync"
)

const (
	// BlacklistEntityType names the excluded-family entity class.
	BlacklistEntityType sync.EntityType = "familia_blacklist"
	// CustomNameEntityType names the custom family name entity class.
	CustomNameEntityType sync.EntityType = "familia_names"
)

var (
	// ErrInvalidFamiliaID indicates an empty or oversized familia identifier.
	ErrInvalidFamiliaID = errors.New("familia: invalid familia id")
	// ErrInvalidCustomName indicates an empty custom display name.
	ErrInvalidCustomName = errors.New("familia: invalid custom name")
)

const maxIdentifierLength = 190

func validateFamiliaID(familiaID string) error {
	trimmed := strings.TrimSpace(familiaID)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFamiliaID)
	}
	if len(trimmed) > maxIdentifierLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidFamiliaID, maxIdentifierLength)
	}
	return nil
}

// BlacklistEntry marks a family branch as excluded from tree rendering.
type BlacklistEntry struct {
	FamiliaID string `gorm:"column:familia_id;primaryKey;size:190;not null" json:"familia_id"`
	sync.Meta `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (BlacklistEntry) TableName() string {
	return "familia_blacklist"
}

// Key returns the logical identity of the record.
func (e BlacklistEntry) Key() sync.Key {
	return sync.Key{ID: e.FamiliaID}
}

// MarkSynced returns a copy with the pending flag cleared.
func (e BlacklistEntry) MarkSynced(at time.Time) BlacklistEntry {
	e.Meta = e.Meta.WithSynced(at)
	return e
}

// MarkPending returns a copy flagged as carrying unsynced local changes.
func (e BlacklistEntry) MarkPending() BlacklistEntry {
	e.Meta = e.Meta.WithPending()
	return e
}

// EqualPayload compares the entity payload, ignoring sync bookkeeping.
func (e BlacklistEntry) EqualPayload(other BlacklistEntry) bool {
	return e.FamiliaID == other.FamiliaID
}

// CustomFamilyName overrides the display name for one family branch.
type CustomFamilyName struct {
	FamiliaID string `gorm:"column:familia_id;primaryKey;size:190;not null" json:"familia_id"`
	Name      string `gorm:"column:name;size:320;not null" json:"name"`
	sync.Meta `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (CustomFamilyName) TableName() string {
	return "familia_custom_names"
}

// Key returns the logical identity of the record.
func (n CustomFamilyName) Key() sync.Key {
	return sync.Key{ID: n.FamiliaID}
}

// MarkSynced returns a copy with the pending flag cleared.
func (n CustomFamilyName) MarkSynced(at time.Time) CustomFamilyName {
	n.Meta = n.Meta.WithSynced(at)
	return n
}

// MarkPending returns a copy flagged as carrying unsynced local changes.
func (n CustomFamilyName) MarkPending() CustomFamilyName {
	n.Meta = n.Meta.WithPending()
	return n
}

// EqualPayload compares the entity payload, ignoring sync bookkeeping.
func (n CustomFamilyName) EqualPayload(other CustomFamilyName) bool {
	return n.FamiliaID == other.FamiliaID && n.Name == other.Name
}
