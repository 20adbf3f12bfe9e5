// Package catalog provides the exercise library consumed by fallback plan
// generation. Exercises are looked up by category, equipment, or difficulty;
// backends include an in-memory store and a SQLite store fed by CSV import.
package catalog

import (
	"context"
	"errors"
)

// Difficulty levels used by the library.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// ErrNotFound is returned when an exercise ID does not exist.
var ErrNotFound = errors.New("exercise not found")

// Exercise is a single entry in the library. EquipmentRequired,
// TargetMuscles, and Instructions may be nil; consumers must treat a nil
// slice as empty.
type Exercise struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	EquipmentRequired []string `json:"equipmentRequired"`
	TargetMuscles     []string `json:"targetMuscles"`
	DifficultyLevel   string   `json:"difficultyLevel"`
	Instructions      []string `json:"instructions"`
}

// Catalog is the lookup interface the plan generator depends on.
type Catalog interface {
	// ExerciseByID returns a single exercise, or ErrNotFound.
	ExerciseByID(ctx context.Context, id int64) (Exercise, error)

	// ExercisesByCategory returns all exercises in a category
	// ("mobility", "recovery", "strength", ...).
	ExercisesByCategory(ctx context.Context, category string) ([]Exercise, error)

	// ExercisesByEquipment returns exercises requiring a piece of equipment.
	ExercisesByEquipment(ctx context.Context, equipment string) ([]Exercise, error)

	// ExercisesByDifficulty returns exercises at a difficulty level.
	ExercisesByDifficulty(ctx context.Context, level string) ([]Exercise, error)

	// Count returns the number of exercises in the library.
	Count(ctx context.Context) (int64, error)

	// Close releases backend resources.
	Close() error
}
