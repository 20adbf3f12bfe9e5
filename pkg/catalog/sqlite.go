package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const createExercisesTable = `
CREATE TABLE IF NOT EXISTS exercises (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	equipment_required TEXT NOT NULL DEFAULT '[]',
	target_muscles TEXT NOT NULL DEFAULT '[]',
	difficulty_level TEXT NOT NULL,
	instructions TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_exercises_category ON exercises(category);
CREATE INDEX IF NOT EXISTS idx_exercises_difficulty ON exercises(difficulty_level);
`

// SQLite is a Catalog backed by a SQLite database file. List-valued columns
// are stored as JSON text.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary migrates) the exercise database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	if _, err := db.Exec(createExercisesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Insert stores an exercise and returns it with its assigned ID.
func (s *SQLite) Insert(ctx context.Context, ex Exercise) (Exercise, error) {
	eq, _ := json.Marshal(emptyIfNil(ex.EquipmentRequired))
	tm, _ := json.Marshal(emptyIfNil(ex.TargetMuscles))
	in, _ := json.Marshal(emptyIfNil(ex.Instructions))

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exercises (name, description, category, equipment_required, target_muscles, difficulty_level, instructions)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.Name, ex.Description, ex.Category, string(eq), string(tm), ex.DifficultyLevel, string(in),
	)
	if err != nil {
		return Exercise{}, fmt.Errorf("insert exercise: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Exercise{}, fmt.Errorf("insert exercise: %w", err)
	}
	ex.ID = id
	return ex, nil
}

// ExerciseByID returns a single exercise, or ErrNotFound.
func (s *SQLite) ExerciseByID(ctx context.Context, id int64) (Exercise, error) {
	out, err := s.query(ctx, `SELECT id, name, description, category, equipment_required, target_muscles, difficulty_level, instructions
		FROM exercises WHERE id = ?`, id)
	if err != nil {
		return Exercise{}, err
	}
	if len(out) == 0 {
		return Exercise{}, ErrNotFound
	}
	return out[0], nil
}

// ExercisesByCategory returns all exercises in a category.
func (s *SQLite) ExercisesByCategory(ctx context.Context, category string) ([]Exercise, error) {
	return s.query(ctx, `SELECT id, name, description, category, equipment_required, target_muscles, difficulty_level, instructions
		FROM exercises WHERE category = ? ORDER BY id`, category)
}

// ExercisesByEquipment returns exercises whose equipment list contains the
// given piece.
func (s *SQLite) ExercisesByEquipment(ctx context.Context, equipment string) ([]Exercise, error) {
	// JSON-encoded list membership via substring match on the quoted value.
	pattern := `%"` + equipment + `"%`
	return s.query(ctx, `SELECT id, name, description, category, equipment_required, target_muscles, difficulty_level, instructions
		FROM exercises WHERE equipment_required LIKE ? ORDER BY id`, pattern)
}

// ExercisesByDifficulty returns exercises at a difficulty level.
func (s *SQLite) ExercisesByDifficulty(ctx context.Context, level string) ([]Exercise, error) {
	return s.query(ctx, `SELECT id, name, description, category, equipment_required, target_muscles, difficulty_level, instructions
		FROM exercises WHERE difficulty_level = ? ORDER BY id`, level)
}

// Count returns the number of stored exercises.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exercises`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count exercises: %w", err)
	}
	return count, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]Exercise, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer rows.Close()

	var out []Exercise
	for rows.Next() {
		var ex Exercise
		var eq, tm, in string
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.Category, &eq, &tm, &ex.DifficultyLevel, &in); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		// Malformed list columns degrade to empty, never to an error.
		_ = json.Unmarshal([]byte(eq), &ex.EquipmentRequired)
		_ = json.Unmarshal([]byte(tm), &ex.TargetMuscles)
		_ = json.Unmarshal([]byte(in), &ex.Instructions)
		out = append(out, ex)
	}
	return out, rows.Err()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
