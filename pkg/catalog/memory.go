package catalog

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Catalog, used when no database is configured and
// as the seed store for tests.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]Exercise
}

// NewMemory creates a Memory catalog pre-loaded with the given exercises.
func NewMemory(exercises ...Exercise) *Memory {
	m := &Memory{
		nextID: 1,
		items:  make(map[int64]Exercise, len(exercises)),
	}
	for _, ex := range exercises {
		m.Add(ex)
	}
	return m
}

// Add inserts an exercise, assigning an ID if it has none, and returns the
// stored copy.
func (m *Memory) Add(ex Exercise) Exercise {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ex.ID == 0 {
		ex.ID = m.nextID
	}
	if ex.ID >= m.nextID {
		m.nextID = ex.ID + 1
	}
	m.items[ex.ID] = ex
	return ex
}

// ExerciseByID returns a single exercise, or ErrNotFound.
func (m *Memory) ExerciseByID(ctx context.Context, id int64) (Exercise, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ex, ok := m.items[id]
	if !ok {
		return Exercise{}, ErrNotFound
	}
	return ex, nil
}

// ExercisesByCategory returns all exercises in a category.
func (m *Memory) ExercisesByCategory(ctx context.Context, category string) ([]Exercise, error) {
	return m.filter(func(ex Exercise) bool { return ex.Category == category }), nil
}

// ExercisesByEquipment returns exercises requiring a piece of equipment.
func (m *Memory) ExercisesByEquipment(ctx context.Context, equipment string) ([]Exercise, error) {
	return m.filter(func(ex Exercise) bool {
		for _, eq := range ex.EquipmentRequired {
			if eq == equipment {
				return true
			}
		}
		return false
	}), nil
}

// ExercisesByDifficulty returns exercises at a difficulty level.
func (m *Memory) ExercisesByDifficulty(ctx context.Context, level string) ([]Exercise, error) {
	return m.filter(func(ex Exercise) bool { return ex.DifficultyLevel == level }), nil
}

// Count returns the number of stored exercises.
func (m *Memory) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.items)), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

func (m *Memory) filter(keep func(Exercise) bool) []Exercise {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Exercise
	for _, ex := range m.items {
		if keep(ex) {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
