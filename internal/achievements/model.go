package achievements

import (
	"time"

	"github.com/famling-app/famling/backend/internal/sync"
)

// EntityType names the achievement progress entity class for the sync engine.
const EntityType sync.EntityType = "achievement_progress"

// Progress tracks one owner's advancement toward one achievement. The storage
// key is composite (owner + achievement), which is why every engine boundary
// for this class runs through the owner-scope guard.
type Progress struct {
	OwnerID           string `gorm:"column:owner_id;primaryKey;size:190;not null" json:"owner_id"`
	AchievementID     string `gorm:"column:achievement_id;primaryKey;size:190;not null" json:"achievement_id"`
	ProgressCurrent   int    `gorm:"column:progress_current;not null;default:0" json:"progress_current"`
	ProgressTarget    int    `gorm:"column:progress_target;not null" json:"progress_target"`
	Unlocked          bool   `gorm:"column:unlocked;not null;default:false" json:"unlocked"`
	UnlockedAtSeconds int64  `gorm:"column:unlocked_at_s;not null;default:0" json:"unlocked_at_s,omitempty"`
	RewardPoints      int    `gorm:"column:reward_points;not null;default:0" json:"reward_points"`
	sync.Meta         `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (Progress) TableName() string {
	return "achievement_progress"
}

// Key returns the composite identity of the record.
func (p Progress) Key() sync.Key {
	return sync.Key{ID: p.AchievementID, OwnerID: p.OwnerID}
}

// MarkSynced returns a copy with the pending flag cleared.
func (p Progress) MarkSynced(at time.Time) Progress {
	p.Meta = p.Meta.WithSynced(at)
	return p
}

// MarkPending returns a copy flagged as carrying unsynced local changes.
func (p Progress) MarkPending() Progress {
	p.Meta = p.Meta.WithPending()
	return p
}

// EqualPayload compares the entity payload, ignoring sync bookkeeping.
func (p Progress) EqualPayload(other Progress) bool {
	p.Meta = sync.Meta{}
	other.Meta = sync.Meta{}
	return p == other
}

// Profile is the derived gamification aggregate, exactly one per owner. It is
// recomputed from the owner's reconciled progress records after every pass
// touching achievements, never merged or independently authored.
type Profile struct {
	OwnerID          string `gorm:"column:owner_id;primaryKey;size:190;not null" json:"owner_id"`
	TotalXP          int    `gorm:"column:total_xp;not null;default:0" json:"total_xp"`
	Level            int    `gorm:"column:level;not null;default:1" json:"level"`
	UnlockedCount    int    `gorm:"column:unlocked_count;not null;default:0" json:"unlocked_count"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;default:0" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "gamification_profiles"
}

// LevelForXP derives the level from total experience: each level requires 50
// more points than the previous one, starting at 100.
func LevelForXP(totalXP int) int {
	level := 1
	required := 100
	for totalXP >= required {
		level++
		totalXP -= required
		required += 50
	}
	return level
}
