package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidEntityType indicates an empty or oversized entity type name.
	ErrInvalidEntityType = errors.New("sync: invalid entity type")
	// ErrInvalidRecordID indicates that a record identifier is empty or exceeds storage bounds.
	ErrInvalidRecordID = errors.New("sync: invalid record id")
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("sync: invalid owner id")
)

// EntityType names one reconciled entity class, e.g. "people" or "achievement_progress".
type EntityType string

// NewEntityType validates raw input and returns an EntityType.
func NewEntityType(rawInput string) (EntityType, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntityType)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntityType, maxIdentifierLength)
	}
	return EntityType(trimmed), nil
}

// String returns the underlying entity type name.
func (t EntityType) String() string {
	return string(t)
}

// Key identifies one logical record. OwnerID is empty for shared entities and
// set for user-scoped entities, making the key a composite of both parts.
type Key struct {
	ID      string
	OwnerID string
}

// NewKey validates the identifier and returns an unscoped Key.
func NewKey(id string) (Key, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Key{}, fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	if len(trimmed) > maxIdentifierLength {
		return Key{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordID, maxIdentifierLength)
	}
	return Key{ID: trimmed}, nil
}

// NewOwnedKey validates both identifier parts and returns an owner-scoped Key.
func NewOwnedKey(ownerID, id string) (Key, error) {
	key, err := NewKey(id)
	if err != nil {
		return Key{}, err
	}
	trimmedOwner := strings.TrimSpace(ownerID)
	if trimmedOwner == "" {
		return Key{}, fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmedOwner) > maxIdentifierLength {
		return Key{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	key.OwnerID = trimmedOwner
	return key, nil
}

// Scope restricts a reconciliation pass. The zero value covers all records of
// an entity type; an owner scope covers one user's records only.
type Scope struct {
	ownerID string
}

// ScopeAll covers every record of an entity type.
var ScopeAll = Scope{}

// OwnerScope restricts a pass to records belonging to the given owner.
func OwnerScope(ownerID string) (Scope, error) {
	trimmed := strings.TrimSpace(ownerID)
	if trimmed == "" {
		return Scope{}, fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	return Scope{ownerID: trimmed}, nil
}

// OwnerID returns the scoped owner identifier, empty for ScopeAll.
func (s Scope) OwnerID() string {
	return s.ownerID
}

// IsOwned reports whether the scope is restricted to a single owner.
func (s Scope) IsOwned() bool {
	return s.ownerID != ""
}

// String renders the scope for logging.
func (s Scope) String() string {
	if s.ownerID == "" {
		return "all"
	}
	return "owner:" + s.ownerID
}

// Record is the contract every syncable entity class satisfies. Implementations
// are value types; the mutating methods return modified copies so a half-applied
// mutation never becomes visible to another pass.
type Record[T any] interface {
	// Key returns the logical identity of the record within its entity type.
	Key() Key
	// Pending reports whether the record carries local changes not yet
	// confirmed by the remote store.
	Pending() bool
	// Tombstoned reports whether the record is a pending delete awaiting
	// remote confirmation.
	Tombstoned() bool
	// SyncedAtUnix returns the unix seconds of the last confirmed remote
	// write, zero when the record has never been synced.
	SyncedAtUnix() int64
	// MarkSynced returns a copy with the pending flag cleared and the synced
	// timestamp set.
	MarkSynced(at time.Time) T
	// MarkPending returns a copy flagged as carrying unsynced local changes.
	MarkPending() T
	// EqualPayload reports whether the entity payload (excluding sync
	// bookkeeping) matches the other record.
	EqualPayload(other T) bool
}

// Meta carries the sync bookkeeping columns shared by every locally cached
// record. Entity models embed it; the engine never persists it remotely.
type Meta struct {
	PendingSync     bool  `gorm:"column:pending_sync;not null;default:false;index" json:"-"`
	Deleted         bool  `gorm:"column:deleted;not null;default:false" json:"-"`
	SyncedAtSeconds int64 `gorm:"column:synced_at_s;not null;default:0" json:"-"`
}

// Pending reports whether the record awaits a confirmed remote write.
func (m Meta) Pending() bool {
	return m.PendingSync
}

// Tombstoned reports whether the record is a pending delete.
func (m Meta) Tombstoned() bool {
	return m.Deleted
}

// SyncedAtUnix returns the unix seconds of the last confirmed remote write.
func (m Meta) SyncedAtUnix() int64 {
	return m.SyncedAtSeconds
}

// WithSynced returns a copy with the pending flag cleared and the synced
// timestamp set. Entity models use it to implement MarkSynced.
func (m Meta) WithSynced(at time.Time) Meta {
	m.PendingSync = false
	m.SyncedAtSeconds = at.UTC().Unix()
	return m
}

// WithPending returns a copy flagged as carrying unsynced local changes.
func (m Meta) WithPending() Meta {
	m.PendingSync = true
	return m
}

// SyncedMeta returns bookkeeping for a record just confirmed on the remote store.
func SyncedMeta(at time.Time) Meta {
	return Meta{}.WithSynced(at)
}

// PendingMeta returns bookkeeping for a freshly created or locally edited record.
func PendingMeta() Meta {
	return Meta{}.WithPending()
}

// TombstoneMeta returns bookkeeping for a pending delete.
func TombstoneMeta() Meta {
	meta := Meta{}.WithPending()
	meta.Deleted = true
	return meta
}
