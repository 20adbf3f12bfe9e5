package advisor

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/rebound-ai/rebound/pkg/catalog"
)

// targetMuscleGroups expands a focus-area label into the concrete muscle
// groups used when filtering catalog exercises.
var targetMuscleGroups = map[string][]string{
	"full_body":  {"core", "glutes", "hamstrings", "quads", "shoulders", "lower_back", "upper_back", "neck"},
	"upper_body": {"shoulders", "upper_back", "chest", "biceps", "triceps", "wrists", "forearms"},
	"lower_body": {"glutes", "hamstrings", "quads", "calves", "ankles", "hip_flexors", "adductors"},
	"back":       {"lower_back", "upper_back", "spine"},
	"shoulders":  {"shoulders", "rear_delts", "rotator_cuff"},
	"hips":       {"hips", "glutes", "hip_flexors"},
	"legs":       {"quads", "hamstrings", "calves", "adductors"},
}

// stretchRoutine is used when the exercise catalog is empty or unavailable.
type stretchRoutine struct {
	areas       []string
	title       string
	description string
}

var stretchLibrary = []stretchRoutine{
	{
		areas:       []string{"upper_body", "shoulders", "full_body"},
		title:       "Shoulder & Chest Release",
		description: "Perform gentle shoulder rolls, doorway chest stretches, and cross-body arm stretches. Hold each stretch for 30 seconds and breathe deeply.",
	},
	{
		areas:       []string{"lower_body", "legs", "full_body"},
		title:       "Lower Body Recovery",
		description: "Work through standing quad stretches, seated hamstring stretches, and calf stretches against a wall. Hold each for 30-45 seconds per side.",
	},
	{
		areas:       []string{"back", "full_body"},
		title:       "Back Mobility Flow",
		description: "Move through cat-cow stretches, child's pose, and gentle spinal twists. Focus on slow, controlled movement with each breath.",
	},
	{
		areas:       []string{"shoulders", "upper_body", "full_body"},
		title:       "Shoulder Mobility Routine",
		description: "Perform arm circles, wall slides, and thread-the-needle stretches. Keep movements slow and stop before any sharp discomfort.",
	},
	{
		areas:       []string{"hips", "lower_body", "full_body"},
		title:       "Hip Mobility Sequence",
		description: "Work through hip circles, 90/90 stretches, and a low lunge hold on each side. Ease into each position gradually.",
	},
}

// taskCountFor maps available minutes onto a task budget. The count only
// grows with time, never shrinks.
func taskCountFor(timeAvailable int) int {
	switch {
	case timeAvailable <= 10:
		return 3
	case timeAvailable <= 20:
		return 4
	case timeAvailable <= 30:
		return 5
	case timeAvailable <= 45:
		return 6
	default:
		return 7
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func humanize(area string) string {
	return strings.ReplaceAll(area, "_", " ")
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if containsFold(b, x) {
			return true
		}
	}
	return false
}

// fallbackRecommendation builds soreness-driven recovery advice without any
// remote call. Areas are handled in the order they were reported.
func fallbackRecommendation(req RecommendationRequest) *Recommendation {
	rec := &Recommendation{
		Recommendations: []string{},
		FocusAreas:      []string{},
	}
	for _, s := range req.Soreness {
		switch {
		case s.Level > 7:
			rec.Recommendations = append(rec.Recommendations,
				fmt.Sprintf("Your %s soreness is high. Focus on gentle recovery techniques like light stretching and foam rolling today.", humanize(s.Area)))
			rec.FocusAreas = append(rec.FocusAreas, s.Area)
		case s.Level > 4:
			rec.Recommendations = append(rec.Recommendations,
				fmt.Sprintf("Moderate soreness in your %s. Include targeted mobility exercises and avoid intense loading of this area.", humanize(s.Area)))
			rec.FocusAreas = append(rec.FocusAreas, s.Area)
		}
	}
	if len(rec.Recommendations) == 0 {
		rec.Recommendations = append(rec.Recommendations,
			"Focus on full-body mobility work to maintain movement quality and prevent soreness.")
		rec.FocusAreas = append(rec.FocusAreas, "full_body")
	}
	return rec
}

// fallbackMovementAssessment is returned when the rate limiter denies a
// movement analysis request.
func fallbackMovementAssessment() *MovementAssessment {
	return &MovementAssessment{
		Quality: "fair",
		Feedback: []string{
			"Keep your spine neutral throughout the movement.",
			"Focus on controlled tempo rather than speed.",
			"Ensure your weight stays evenly distributed.",
		},
		Suggestions: []string{
			"Record your movement from a side angle for better self-assessment.",
			"Practice the movement pattern with lighter load to groove proper form.",
		},
	}
}

// errorMovementAssessment is returned when a remote analysis attempt fails.
func errorMovementAssessment() *MovementAssessment {
	return &MovementAssessment{
		Quality: "fair",
		Feedback: []string{
			"Unable to fully analyze the movement from this image.",
			"General form principles: keep joints stacked and core engaged.",
		},
		Suggestions: []string{
			"Try capturing the image with better lighting and a clear side view.",
			"Focus on slow, controlled repetitions while you refine your form.",
		},
	}
}

// fallbackFeedbackAnalysis is the deterministic stand-in for remote feedback
// analysis.
func fallbackFeedbackAnalysis() *FeedbackAnalysis {
	return &FeedbackAnalysis{
		Insights: []string{
			"Your feedback shows you're making progress with your recovery routine.",
			"You seem to respond well to moderate-intensity recovery sessions.",
		},
		Recommendations: []string{
			"Continue with your current recovery plan and track how your body responds.",
			"Try varying your exercise selection to keep sessions engaging and avoid plateaus.",
		},
	}
}

func planTitle(focusAreas []string, intensity string) string {
	var focus string
	if containsFold(focusAreas, "full_body") {
		focus = "Full Body"
	} else {
		parts := make([]string, len(focusAreas))
		for i, f := range focusAreas {
			parts[i] = capitalize(f)
		}
		focus = strings.Join(parts, " & ")
	}
	return fmt.Sprintf("%s %s Recovery", focus, capitalize(intensity))
}

func planDescription(focusAreas []string, intensity string, timeAvailable int) string {
	target := "your entire body"
	if !containsFold(focusAreas, "full_body") {
		parts := make([]string, len(focusAreas))
		for i, f := range focusAreas {
			parts[i] = humanize(f)
		}
		target = strings.Join(parts, " and ")
	}
	return fmt.Sprintf("A %s intensity recovery session targeting %s. This %d-minute recovery flow will help improve mobility, reduce soreness, and enhance your performance.",
		intensity, target, timeAvailable)
}

func warmUpTask() Task {
	return Task{
		Title:       "Dynamic Warm-Up",
		Description: "Begin with light movement to raise your body temperature: arm circles, leg swings, and gentle torso rotations. Keep the pace easy.",
		Category:    "mobility",
		Duration:    2,
	}
}

// selectExercises narrows the catalog pool per the request, shuffles it, and
// returns the pool in selection order.
func selectExercises(pool []catalog.Exercise, req PlanRequest, rng *rand.Rand) []catalog.Exercise {
	// Equipment: keep exercises whose gear the athlete has, plus anything
	// that needs none. If nothing matches, retry with bodyweight-only; if
	// even that is empty, keep the whole pool.
	if len(req.Equipment) > 0 && !containsFold(req.Equipment, "none") {
		var matched, bodyweight []catalog.Exercise
		for _, ex := range pool {
			if len(ex.EquipmentRequired) == 0 {
				matched = append(matched, ex)
				bodyweight = append(bodyweight, ex)
			} else if overlaps(ex.EquipmentRequired, req.Equipment) {
				matched = append(matched, ex)
			}
		}
		if len(matched) > 0 {
			pool = matched
		} else if len(bodyweight) > 0 {
			pool = bodyweight
		}
	}

	// Target muscles: skipped for full_body. A match set smaller than 3
	// is too thin to build a session from, so keep the wider pool.
	if !containsFold(req.FocusAreas, "full_body") {
		var muscles []string
		for _, area := range req.FocusAreas {
			muscles = append(muscles, targetMuscleGroups[strings.ToLower(area)]...)
		}
		if len(muscles) > 0 {
			var targeted []catalog.Exercise
			for _, ex := range pool {
				if overlaps(ex.TargetMuscles, muscles) {
					targeted = append(targeted, ex)
				}
			}
			if len(targeted) >= 3 {
				pool = targeted
			}
		}
	}

	if strings.EqualFold(req.Intensity, IntensityLight) {
		var beginner []catalog.Exercise
		for _, ex := range pool {
			if strings.EqualFold(ex.DifficultyLevel, catalog.DifficultyBeginner) {
				beginner = append(beginner, ex)
			}
		}
		if len(beginner) >= 3 {
			pool = beginner
		}
	}

	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	// Intense sessions front-load the hardest work. The sort is stable so
	// the shuffle still varies order within each difficulty level.
	if strings.EqualFold(req.Intensity, IntensityIntense) {
		rank := func(level string) int {
			switch strings.ToLower(level) {
			case catalog.DifficultyAdvanced:
				return 0
			case catalog.DifficultyIntermediate:
				return 1
			case catalog.DifficultyBeginner:
				return 2
			default:
				return 3
			}
		}
		sort.SliceStable(pool, func(i, j int) bool {
			return rank(pool[i].DifficultyLevel) < rank(pool[j].DifficultyLevel)
		})
	}
	return pool
}

func exerciseTask(ex catalog.Exercise, duration int) Task {
	var desc string
	if len(ex.Instructions) > 0 {
		desc = fmt.Sprintf("%s. %s Adjust intensity as needed based on your recovery needs.",
			strings.TrimSuffix(ex.Description, "."), strings.Join(ex.Instructions, ". ")+".")
	} else if ex.Description != "" {
		desc = fmt.Sprintf("%s. Adjust intensity as needed based on your recovery needs.",
			strings.TrimSuffix(ex.Description, "."))
	} else {
		desc = fmt.Sprintf("Perform %s focusing on proper form and controlled movement.", ex.Name)
	}
	return Task{
		Title:       ex.Name,
		Description: desc,
		Category:    ex.Category,
		Duration:    duration,
	}
}

// stretchTasks builds the canned routine used when the catalog is empty.
func stretchTasks(focusAreas []string, duration int) []Task {
	fullBody := containsFold(focusAreas, "full_body")
	var tasks []Task
	for _, st := range stretchLibrary {
		if fullBody || overlaps(st.areas, focusAreas) {
			tasks = append(tasks, Task{
				Title:       st.title,
				Description: st.description,
				Category:    "mobility",
				Duration:    duration,
			})
		}
	}
	tasks = append(tasks, Task{
		Title:       "Cool-Down Stretches",
		Description: "Finish with slow static stretches for the areas you worked, holding each for 30 seconds while breathing deeply.",
		Category:    "mobility",
		Duration:    2,
	})
	return tasks
}

// trimMiddle removes middle tasks until at most max remain, preserving the
// warm-up at the front and the closer at the back.
func trimMiddle(tasks []Task, max int) []Task {
	for len(tasks) > max {
		mid := len(tasks) / 2
		tasks = append(tasks[:mid], tasks[mid+1:]...)
	}
	return tasks
}

// reconcileDurations adjusts task durations so they sum to exactly
// timeAvailable. Shortfall is handed out a minute at a time starting from the
// first task; overshoot is shaved from the last tasks, never below 1 minute.
func reconcileDurations(tasks []Task, timeAvailable int) {
	if len(tasks) == 0 {
		return
	}
	total := 0
	for _, t := range tasks {
		total += t.Duration
	}
	for i := 0; total < timeAvailable; i++ {
		tasks[i%len(tasks)].Duration++
		total++
	}
	for i := len(tasks) - 1; total > timeAvailable; {
		if tasks[i].Duration > 1 {
			tasks[i].Duration--
			total--
		} else if i == 0 {
			break
		} else {
			i--
		}
	}
}

// fallbackPlan generates a complete recovery plan from the local exercise
// catalog. It never fails: catalog errors or an empty catalog route to a
// built-in stretch routine.
func fallbackPlan(ctx context.Context, cat catalog.Catalog, req PlanRequest, rng *rand.Rand) *Plan {
	if len(req.FocusAreas) == 0 {
		req.FocusAreas = []string{"full_body"}
	}
	if req.TimeAvailable <= 0 {
		req.TimeAvailable = 15
	}
	if req.Intensity == "" {
		req.Intensity = IntensityModerate
	}

	taskCount := taskCountFor(req.TimeAvailable)
	perTask := req.TimeAvailable / taskCount
	if perTask < 1 {
		perTask = 1
	}

	pool := loadExercisePool(ctx, cat)
	tasks := []Task{warmUpTask()}
	if len(pool) == 0 {
		tasks = append(tasks, stretchTasks(req.FocusAreas, perTask)...)
	} else {
		selected := selectExercises(pool, req, rng)
		if len(selected) > taskCount-1 {
			selected = selected[:taskCount-1]
		}
		for _, ex := range selected {
			tasks = append(tasks, exerciseTask(ex, perTask))
		}
	}

	tasks = trimMiddle(tasks, taskCount)
	reconcileDurations(tasks, req.TimeAvailable)

	return &Plan{
		Title:       planTitle(req.FocusAreas, req.Intensity),
		Description: planDescription(req.FocusAreas, req.Intensity, req.TimeAvailable),
		Tasks:       tasks,
	}
}

// loadExercisePool gathers the recovery-relevant catalog categories. Any
// error empties the pool so the caller falls back to canned stretches.
func loadExercisePool(ctx context.Context, cat catalog.Catalog) []catalog.Exercise {
	if cat == nil {
		return nil
	}
	var pool []catalog.Exercise
	for _, category := range []string{"mobility", "recovery", "strength"} {
		exercises, err := cat.ExercisesByCategory(ctx, category)
		if err != nil {
			return nil
		}
		pool = append(pool, exercises...)
	}
	return pool
}
