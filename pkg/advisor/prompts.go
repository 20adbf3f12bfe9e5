package advisor

import (
	"fmt"
	"strings"

	"github.com/rebound-ai/rebound/pkg/catalog"
)

const coachSystemPrompt = "You are an expert recovery coach for athletes. " +
	"You give concise, practical, safety-first advice grounded in sports science. " +
	"Always respond with a single JSON object and nothing else."

func recommendationPrompt(req RecommendationRequest) string {
	var b strings.Builder
	b.WriteString("Generate recovery recommendations for an athlete with the following soreness report:\n")
	if len(req.Soreness) == 0 {
		b.WriteString("- no soreness reported\n")
	}
	for _, s := range req.Soreness {
		fmt.Fprintf(&b, "- %s: %d/10\n", humanize(s.Area), s.Level)
	}
	if req.Intensity != "" {
		fmt.Fprintf(&b, "Preferred intensity: %s\n", req.Intensity)
	}
	b.WriteString("\nRespond with JSON: {\"recommendations\": [string], \"focusAreas\": [string]}. ")
	b.WriteString("Give 2-4 specific recommendations. Use snake_case body-area labels for focusAreas.")
	return b.String()
}

func planPrompt(req PlanRequest, exercises []catalog.Exercise) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %d-minute %s intensity recovery plan focusing on: %s.\n",
		req.TimeAvailable, req.Intensity, strings.Join(req.FocusAreas, ", "))
	if req.SportType != "" {
		fmt.Fprintf(&b, "Sport: %s.\n", req.SportType)
	}
	if len(req.Equipment) > 0 {
		fmt.Fprintf(&b, "Available equipment: %s.\n", strings.Join(req.Equipment, ", "))
	} else {
		b.WriteString("No equipment available.\n")
	}
	for _, inj := range req.Injuries {
		fmt.Fprintf(&b, "Injury to work around: %s (%s).\n", inj.BodyPart, inj.Description)
	}
	for _, s := range req.Soreness {
		fmt.Fprintf(&b, "Current soreness: %s %d/10.\n", humanize(s.Area), s.Level)
	}
	if len(exercises) > 0 {
		b.WriteString("\nPrefer exercises from this catalog:\n")
		for _, ex := range exercises {
			fmt.Fprintf(&b, "- %s (%s, %s)\n", ex.Name, ex.Category, ex.DifficultyLevel)
		}
	}
	b.WriteString("\nRespond with JSON: {\"title\": string, \"description\": string, ")
	b.WriteString("\"tasks\": [{\"title\": string, \"description\": string, \"category\": string, \"duration\": number}]}. ")
	fmt.Fprintf(&b, "Durations are minutes and must sum to %d. Start with a short warm-up.", req.TimeAvailable)
	return b.String()
}

const movementPrompt = "Analyze the athlete's movement form in this image. " +
	"Respond with JSON: {\"quality\": \"excellent\"|\"good\"|\"fair\"|\"poor\", " +
	"\"feedback\": [string], \"suggestions\": [string]}. " +
	"Give 2-3 specific feedback points about what you observe and 1-3 suggestions for improvement."

func feedbackPrompt(req FeedbackRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %d recovery session feedback entries for trends:\n", len(req.Sessions))
	for _, s := range req.Sessions {
		fmt.Fprintf(&b, "- session %s: rating %d/5, effectiveness %d/5, difficulty %d/5, enjoyment %d/5",
			s.SessionID, s.Rating, s.Effectiveness, s.Difficulty, s.Enjoyment)
		if s.Feedback != "" {
			fmt.Fprintf(&b, ", notes: %q", s.Feedback)
		}
		b.WriteString("\n")
		for _, ex := range s.Exercises {
			fmt.Fprintf(&b, "  - %s: rating %d/5, effectiveness %d/5\n", ex.Name, ex.Rating, ex.Effectiveness)
		}
	}
	b.WriteString("\nRespond with JSON: {\"insights\": [string], \"recommendations\": [string]}. ")
	b.WriteString("Give 2-3 insights about what is and is not working, and 2-3 recommendations.")
	return b.String()
}
