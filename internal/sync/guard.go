package sync

import (
	"errors"

	"go.uber.org/zap"
)

// ErrOwnerMismatch indicates that a record crossed an owner-scoped boundary
// carrying the wrong owner identifier.
var ErrOwnerMismatch = errors.New("sync: record owner does not match expected owner")

// Violation reports one record rejected by the owner-scope guard. Each
// offending record produces exactly one violation.
type Violation struct {
	Entity          EntityType
	ExpectedOwnerID string
	ActualOwnerID   string
	RecordID        string
}

// Guard validates that owner-scoped records crossing an engine boundary belong
// to the owner the operation was invoked for. It fails closed: a mismatched
// record is dropped from the batch and reported, never merged. Storage keys for
// owner-scoped entities are composite, so a wrong owner supplied upstream would
// otherwise corrupt a different user's state.
type Guard struct {
	entity EntityType
	logger *zap.Logger
}

// NewGuard constructs a Guard for one entity type.
func NewGuard(entity EntityType, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{entity: entity, logger: logger}
}

// Filter returns the records whose owner matches expectedOwnerID, logging each
// rejected record as an integrity violation. A Violation here indicates a logic
// bug elsewhere, not bad user input.
func FilterOwned[T Record[T]](g *Guard, expectedOwnerID string, records []T) ([]T, []Violation) {
	if g == nil {
		return records, nil
	}

	kept := make([]T, 0, len(records))
	var violations []Violation
	for _, record := range records {
		actualOwner := record.Key().OwnerID
		if actualOwner == expectedOwnerID {
			kept = append(kept, record)
			continue
		}
		violation := Violation{
			Entity:          g.entity,
			ExpectedOwnerID: expectedOwnerID,
			ActualOwnerID:   actualOwner,
			RecordID:        record.Key().ID,
		}
		violations = append(violations, violation)
		g.logger.Error("owner scope violation",
			zap.String("entity", g.entity.String()),
			zap.String("expected_owner_id", expectedOwnerID),
			zap.String("actual_owner_id", actualOwner),
			zap.String("record_id", violation.RecordID),
			zap.Error(ErrOwnerMismatch))
	}
	return kept, violations
}
