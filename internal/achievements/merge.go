package achievements

import "github.com/famling-app/famling/backend/internal/sync"

// FieldMerger reconciles two non-pending progress records for the same
// (owner, achievement) key. The rules keep progression monotonic across
// devices:
//
//   - unlocked is the boolean union; an unlock seen anywhere is never lost.
//   - progressCurrent is the maximum; a stale lower value never regresses it.
//   - unlockedAt is the earlier of the two non-zero values.
//   - rewardPoints is recomputed from the catalog, not copied, so a drifted
//     value on either side cannot survive a merge.
func FieldMerger(catalog Catalog) sync.FieldMerger[Progress] {
	return func(local, remote Progress) Progress {
		merged := local
		merged.Unlocked = local.Unlocked || remote.Unlocked
		merged.ProgressCurrent = maxInt(local.ProgressCurrent, remote.ProgressCurrent)
		merged.UnlockedAtSeconds = earlierNonZero(local.UnlockedAtSeconds, remote.UnlockedAtSeconds)

		definition, known := catalog.Lookup(local.AchievementID)
		if known {
			merged.ProgressTarget = definition.Target
		}
		if merged.Unlocked {
			if merged.ProgressCurrent < merged.ProgressTarget {
				merged.ProgressCurrent = merged.ProgressTarget
			}
			if known {
				merged.RewardPoints = definition.RewardPoints
			}
		} else {
			merged.RewardPoints = 0
		}
		return merged
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func earlierNonZero(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
