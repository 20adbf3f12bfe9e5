package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csv column order for exercise imports. List columns use ';' between items.
var csvHeader = []string{
	"name", "description", "category", "equipment_required",
	"target_muscles", "difficulty_level", "instructions",
}

// ParseCSV reads an exercise library export. The first row must be the
// header; list columns are semicolon-separated. Blank list cells yield nil
// slices, which every consumer tolerates.
func ParseCSV(r io.Reader) ([]Exercise, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "category", "difficulty_level"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv missing required column %q", required)
		}
	}

	var out []Exercise
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		ex := Exercise{
			Name:              field("name"),
			Description:       field("description"),
			Category:          field("category"),
			EquipmentRequired: splitList(field("equipment_required")),
			TargetMuscles:     splitList(field("target_muscles")),
			DifficultyLevel:   field("difficulty_level"),
			Instructions:      splitList(field("instructions")),
		}
		if ex.Name == "" {
			return nil, fmt.Errorf("csv line %d: empty exercise name", line)
		}
		out = append(out, ex)
	}

	return out, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
