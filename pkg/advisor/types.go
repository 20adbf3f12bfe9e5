package advisor

// Intensity levels for recovery work.
const (
	IntensityLight    = "light"
	IntensityModerate = "moderate"
	IntensityIntense  = "intense"
)

// SorenessEntry is one body area's soreness on a 0-10 scale. Soreness is an
// ordered sequence, not a map: fallback recommendations are emitted in the
// order areas were reported.
type SorenessEntry struct {
	Area  string `json:"area"`
	Level int    `json:"level"`
}

// RecommendationRequest asks for targeted recovery recommendations.
type RecommendationRequest struct {
	UserID    int64           `json:"userId"`
	Soreness  []SorenessEntry `json:"soreness"`
	Intensity string          `json:"intensity,omitempty"`
}

// Recommendation is the response to a RecommendationRequest.
type Recommendation struct {
	Recommendations []string `json:"recommendations"`
	FocusAreas      []string `json:"focusAreas"`
}

// Injury describes a reported injury considered during plan generation.
type Injury struct {
	BodyPart    string `json:"bodyPart"`
	Description string `json:"description"`
}

// PlanRequest asks for a structured recovery plan.
type PlanRequest struct {
	UserID        int64           `json:"userId"`
	SportType     string          `json:"sportType,omitempty"`
	TimeAvailable int             `json:"timeAvailable"`
	FocusAreas    []string        `json:"focusAreas"`
	Intensity     string          `json:"intensity"`
	Equipment     []string        `json:"equipment"`
	Injuries      []Injury        `json:"injuries,omitempty"`
	Soreness      []SorenessEntry `json:"soreness,omitempty"`
}

// Task is a single step of a recovery plan.
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Duration    int    `json:"duration"` // minutes
	IsCompleted bool   `json:"isCompleted"`
}

// Plan is an ordered recovery session.
type Plan struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tasks       []Task `json:"tasks"`
}

// MovementAssessment is the result of analyzing a movement image.
type MovementAssessment struct {
	Quality     string   `json:"quality"` // excellent, good, fair, poor
	Feedback    []string `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

// ExerciseFeedback rates one exercise within a completed session.
type ExerciseFeedback struct {
	Name          string `json:"name"`
	Rating        int    `json:"rating"`
	Difficulty    int    `json:"difficulty"`
	Effectiveness int    `json:"effectiveness"`
	Feedback      string `json:"feedback,omitempty"`
}

// SessionFeedback is an athlete's rating of a completed recovery session.
type SessionFeedback struct {
	SessionID     string             `json:"sessionId"`
	Rating        int                `json:"rating"`
	Effectiveness int                `json:"effectiveness"`
	Difficulty    int                `json:"difficulty"`
	Enjoyment     int                `json:"enjoyment"`
	Feedback      string             `json:"feedback,omitempty"`
	CompletedAt   string             `json:"completedAt"`
	Exercises     []ExerciseFeedback `json:"exercises,omitempty"`
}

// FeedbackRequest asks for insights over a series of session feedback.
type FeedbackRequest struct {
	UserID   int64             `json:"userId"`
	Sessions []SessionFeedback `json:"sessionFeedback"`
}

// FeedbackAnalysis is the response to a FeedbackRequest.
type FeedbackAnalysis struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}
