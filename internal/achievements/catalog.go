package achievements

import (
	"errors"
	"fmt"
)

// ErrUnknownAchievement indicates a progress record referencing no catalog entry.
var ErrUnknownAchievement = errors.New("achievements: unknown achievement")

// Definition is one entry of the static achievement catalog. Definitions are
// compiled in, never synced.
type Definition struct {
	ID           string
	Title        string
	Description  string
	Target       int
	RewardPoints int
}

// Catalog resolves achievement definitions by identifier.
type Catalog struct {
	definitions map[string]Definition
	order       []string
}

// NewCatalog builds a catalog from the given definitions.
func NewCatalog(definitions []Definition) (Catalog, error) {
	catalog := Catalog{definitions: make(map[string]Definition, len(definitions))}
	for _, definition := range definitions {
		if definition.ID == "" {
			return Catalog{}, fmt.Errorf("achievements: definition with empty id")
		}
		if definition.Target <= 0 {
			return Catalog{}, fmt.Errorf("achievements: definition %q target must be positive", definition.ID)
		}
		if definition.RewardPoints < 0 {
			return Catalog{}, fmt.Errorf("achievements: definition %q reward must not be negative", definition.ID)
		}
		if _, exists := catalog.definitions[definition.ID]; exists {
			return Catalog{}, fmt.Errorf("achievements: duplicate definition %q", definition.ID)
		}
		catalog.definitions[definition.ID] = definition
		catalog.order = append(catalog.order, definition.ID)
	}
	return catalog, nil
}

// Lookup resolves one definition.
func (c Catalog) Lookup(achievementID string) (Definition, bool) {
	definition, ok := c.definitions[achievementID]
	return definition, ok
}

// Definitions returns the catalog entries in declaration order.
func (c Catalog) Definitions() []Definition {
	definitions := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		definitions = append(definitions, c.definitions[id])
	}
	return definitions
}

// DefaultCatalog returns the built-in achievement set.
func DefaultCatalog() Catalog {
	catalog, err := NewCatalog([]Definition{
		{ID: "first_person", Title: "First Branch", Description: "Add your first family member", Target: 1, RewardPoints: 10},
		{ID: "ten_people", Title: "Growing Tree", Description: "Add ten family members", Target: 10, RewardPoints: 25},
		{ID: "fifty_people", Title: "Deep Roots", Description: "Add fifty family members", Target: 50, RewardPoints: 100},
		{ID: "first_photo", Title: "Family Album", Description: "Attach a photo to a family member", Target: 1, RewardPoints: 10},
		{ID: "three_generations", Title: "Generations", Description: "Link three generations together", Target: 3, RewardPoints: 50},
		{ID: "week_streak", Title: "Chronicler", Description: "Open the tree seven days in a row", Target: 7, RewardPoints: 30},
		{ID: "custom_name", Title: "House Words", Description: "Give a family branch a custom name", Target: 1, RewardPoints: 15},
	})
	if err != nil {
		panic(err)
	}
	return catalog
}
