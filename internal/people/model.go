package people

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/famling-app/famling/backend/internal/sync"
)

// EntityType names the person entity class for the sync engine.
const EntityType sync.EntityType = "people"

// ErrInvalidPerson indicates a person payload that cannot be stored.
var ErrInvalidPerson = errors.New("people: invalid person")

// Person is a shared family-tree member record. People belong to the family,
// not to one account, so the record carries no owner scope.
type Person struct {
	PersonID   string `gorm:"column:person_id;primaryKey;size:190;not null" json:"person_id"`
	GivenName  string `gorm:"column:given_name;size:320;not null" json:"given_name"`
	FamilyName string `gorm:"column:family_name;size:320;not null;default:''" json:"family_name,omitempty"`
	BirthYear  int    `gorm:"column:birth_year;not null;default:0" json:"birth_year,omitempty"`
	FatherID   string `gorm:"column:father_id;size:190;not null;default:''" json:"father_id,omitempty"`
	MotherID   string `gorm:"column:mother_id;size:190;not null;default:''" json:"mother_id,omitempty"`
	PartnerID  string `gorm:"column:partner_id;size:190;not null;default:''" json:"partner_id,omitempty"`
	PhotoURL   string `gorm:"column:photo_url;size:512;not null;default:''" json:"photo_url,omitempty"`
	Notes      string `gorm:"column:notes;type:text;not null;default:''" json:"notes,omitempty"`
	sync.Meta  `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (Person) TableName() string {
	return "people"
}

// Key returns the logical identity of the record.
func (p Person) Key() sync.Key {
	return sync.Key{ID: p.PersonID}
}

// MarkSynced returns a copy with the pending flag cleared.
func (p Person) MarkSynced(at time.Time) Person {
	p.Meta = p.Meta.WithSynced(at)
	return p
}

// MarkPending returns a copy flagged as carrying unsynced local changes.
func (p Person) MarkPending() Person {
	p.Meta = p.Meta.WithPending()
	return p
}

// EqualPayload compares the entity payload, ignoring sync bookkeeping.
func (p Person) EqualPayload(other Person) bool {
	p.Meta = sync.Meta{}
	other.Meta = sync.Meta{}
	return p == other
}

// Validate checks the payload against storage bounds.
func (p Person) Validate() error {
	if strings.TrimSpace(p.PersonID) == "" {
		return fmt.Errorf("%w: empty person id", ErrInvalidPerson)
	}
	if strings.TrimSpace(p.GivenName) == "" {
		return fmt.Errorf("%w: empty given name", ErrInvalidPerson)
	}
	return nil
}
