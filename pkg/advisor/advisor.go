// Package advisor orchestrates recovery coaching operations. Every operation
// follows the same path: consult the response cache, ask the rate limiter for
// an admission slot, then either call the remote model once or generate a
// deterministic local result. Operations never return errors to callers; a
// usable result always comes back.
package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rebound-ai/rebound/pkg/cache"
	"github.com/rebound-ai/rebound/pkg/catalog"
	"github.com/rebound-ai/rebound/pkg/metrics"
	"github.com/rebound-ai/rebound/pkg/ratelimit"
)

// Operation names used in cache keys, metrics labels, and spans.
const (
	OpRecommendation   = "recommendation"
	OpPlan             = "plan"
	OpMovementAnalysis = "movement_analysis"
	OpFeedbackAnalysis = "feedback_analysis"
)

// Result sources.
const (
	SourceCache    = "cache"
	SourceRemote   = "remote"
	SourceFallback = "fallback"
)

// CompletionRequest is a single prompt for a remote model.
type CompletionRequest struct {
	System   string
	Prompt   string
	ImageURL string // optional image attachment for vision analysis
	JSON     bool   // request a JSON object response
}

// Completer produces one completion for a prompt. Implementations make a
// single attempt with no retries; the service handles failure locally.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config wires a Service. Cache and Limiter are required. A nil Completer
// disables remote calls entirely; every request takes the fallback path.
type Config struct {
	Cache     *cache.Store
	Limiter   *ratelimit.Limiter
	Catalog   catalog.Catalog
	Completer Completer
	Metrics   *metrics.Metrics
	Rand      *rand.Rand // plan shuffle source; defaults to a time-seeded one
}

// Service implements the four coaching operations.
type Service struct {
	cache     *cache.Store
	limiter   *ratelimit.Limiter
	catalog   catalog.Catalog
	completer Completer
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	randMu sync.Mutex
	rng    *rand.Rand
}

func New(cfg Config) *Service {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		cache:     cfg.Cache,
		limiter:   cfg.Limiter,
		catalog:   cfg.Catalog,
		completer: cfg.Completer,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer("github.com/rebound-ai/rebound/pkg/advisor"),
		rng:       rng,
	}
}

// RecommendRecovery returns soreness-driven recovery recommendations.
func (s *Service) RecommendRecovery(ctx context.Context, req RecommendationRequest) *Recommendation {
	ctx, span := s.tracer.Start(ctx, "advisor.recommendation")
	defer span.End()
	defer s.observe(OpRecommendation, time.Now())

	key := recommendationKey(req)
	if rec, ok := cached[*Recommendation](s, OpRecommendation, key); ok {
		span.SetAttributes(attribute.String("source", SourceCache))
		return rec
	}

	if reason, ok := s.admit(OpRecommendation); !ok {
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", reason))
		rec := fallbackRecommendation(req)
		s.cache.Set(key, rec, cache.TTLRecommendation)
		return rec
	}

	rec, err := s.remoteRecommendation(ctx, req)
	if err != nil {
		log.Printf("recommendation: remote call failed, using local fallback: %v", err)
		s.metrics.RecordRemoteFailure(OpRecommendation)
		s.metrics.RecordFallback(OpRecommendation, "remote_error")
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", "remote_error"))
		rec = fallbackRecommendation(req)
	} else {
		span.SetAttributes(attribute.String("source", SourceRemote))
	}
	s.cache.Set(key, rec, cache.TTLRecommendation)
	return rec
}

// GeneratePlan returns a structured recovery plan.
func (s *Service) GeneratePlan(ctx context.Context, req PlanRequest) *Plan {
	ctx, span := s.tracer.Start(ctx, "advisor.plan")
	defer span.End()
	defer s.observe(OpPlan, time.Now())

	key := planKey(req)
	if plan, ok := cached[*Plan](s, OpPlan, key); ok {
		span.SetAttributes(attribute.String("source", SourceCache))
		return plan
	}

	if reason, ok := s.admit(OpPlan); !ok {
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", reason))
		plan := s.localPlan(ctx, req)
		s.cache.Set(key, plan, cache.TTLPlan)
		return plan
	}

	plan, err := s.remotePlan(ctx, req)
	if err != nil {
		log.Printf("plan: remote call failed, generating locally: %v", err)
		s.metrics.RecordRemoteFailure(OpPlan)
		s.metrics.RecordFallback(OpPlan, "remote_error")
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", "remote_error"))
		plan = s.localPlan(ctx, req)
	} else {
		span.SetAttributes(attribute.String("source", SourceRemote))
	}
	s.cache.Set(key, plan, cache.TTLPlan)
	return plan
}

// AnalyzeMovement assesses movement form from an image (a data URL or
// base64 payload). Remote failures produce a generic safe assessment that is
// not cached, so a later attempt for the same image can still succeed.
func (s *Service) AnalyzeMovement(ctx context.Context, imageData string) *MovementAssessment {
	ctx, span := s.tracer.Start(ctx, "advisor.movement_analysis")
	defer span.End()
	defer s.observe(OpMovementAnalysis, time.Now())

	key := movementKey(imageData)
	if ma, ok := cached[*MovementAssessment](s, OpMovementAnalysis, key); ok {
		span.SetAttributes(attribute.String("source", SourceCache))
		return ma
	}

	if reason, ok := s.admit(OpMovementAnalysis); !ok {
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", reason))
		ma := fallbackMovementAssessment()
		s.cache.Set(key, ma, cache.TTLMovementAnalysis)
		return ma
	}

	ma, err := s.remoteMovement(ctx, imageData)
	if err != nil {
		log.Printf("movement analysis: remote call failed: %v", err)
		s.metrics.RecordRemoteFailure(OpMovementAnalysis)
		s.metrics.RecordFallback(OpMovementAnalysis, "remote_error")
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", "remote_error"))
		return errorMovementAssessment()
	}
	span.SetAttributes(attribute.String("source", SourceRemote))
	s.cache.Set(key, ma, cache.TTLMovementAnalysis)
	return ma
}

// AnalyzeFeedback summarizes session feedback into insights.
func (s *Service) AnalyzeFeedback(ctx context.Context, req FeedbackRequest) *FeedbackAnalysis {
	ctx, span := s.tracer.Start(ctx, "advisor.feedback_analysis")
	defer span.End()
	defer s.observe(OpFeedbackAnalysis, time.Now())

	key := feedbackKey(req)
	if fa, ok := cached[*FeedbackAnalysis](s, OpFeedbackAnalysis, key); ok {
		span.SetAttributes(attribute.String("source", SourceCache))
		return fa
	}

	if reason, ok := s.admit(OpFeedbackAnalysis); !ok {
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", reason))
		fa := fallbackFeedbackAnalysis()
		s.cache.Set(key, fa, cache.TTLFeedbackAnalysis)
		return fa
	}

	fa, err := s.remoteFeedback(ctx, req)
	if err != nil {
		log.Printf("feedback analysis: remote call failed, using local fallback: %v", err)
		s.metrics.RecordRemoteFailure(OpFeedbackAnalysis)
		s.metrics.RecordFallback(OpFeedbackAnalysis, "remote_error")
		span.SetAttributes(attribute.String("source", SourceFallback), attribute.String("reason", "remote_error"))
		fa = fallbackFeedbackAnalysis()
	} else {
		span.SetAttributes(attribute.String("source", SourceRemote))
	}
	s.cache.Set(key, fa, cache.TTLFeedbackAnalysis)
	return fa
}

// admit asks the limiter for a slot. It returns a fallback reason when the
// request cannot go remote: no completer is configured, or admission was
// denied. Denial is normal backpressure, not an error.
func (s *Service) admit(op string) (string, bool) {
	if s.completer == nil {
		s.metrics.RecordFallback(op, "no_completer")
		return "no_completer", false
	}
	if !s.limiter.TryAcquire() {
		s.metrics.RecordRateLimitDenial(op)
		s.metrics.RecordFallback(op, "rate_limited")
		return "rate_limited", false
	}
	return "", true
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.ObserveDuration(op, time.Since(start))
}

func (s *Service) localPlan(ctx context.Context, req PlanRequest) *Plan {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return fallbackPlan(ctx, s.catalog, req, s.rng)
}

func cached[T any](s *Service, op, key string) (T, bool) {
	var zero T
	v, ok := s.cache.Get(key)
	if !ok {
		s.metrics.RecordCacheMiss(op)
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		s.metrics.RecordCacheMiss(op)
		return zero, false
	}
	s.metrics.RecordCacheHit(op)
	return t, true
}

// Cache keys. Soreness is keyed as an area->level map so report order does
// not fragment the cache; intensity is deliberately excluded from the
// recommendation key since it does not change the advice materially.

func recommendationKey(req RecommendationRequest) string {
	soreness := make(map[string]any, len(req.Soreness))
	for _, s := range req.Soreness {
		soreness[s.Area] = s.Level
	}
	return cache.Fingerprint(OpRecommendation, map[string]any{
		"userId":   req.UserID,
		"soreness": soreness,
	})
}

func planKey(req PlanRequest) string {
	return cache.Fingerprint(OpPlan, map[string]any{
		"userId":        req.UserID,
		"timeAvailable": req.TimeAvailable,
		"focusAreas":    sortedCopy(req.FocusAreas),
		"intensity":     req.Intensity,
		"equipment":     sortedCopy(req.Equipment),
	})
}

func movementKey(imageData string) string {
	sum := sha256.Sum256([]byte(imageData))
	return cache.Fingerprint(OpMovementAnalysis, map[string]any{
		"image": hex.EncodeToString(sum[:]),
	})
}

func feedbackKey(req FeedbackRequest) string {
	last := ""
	if n := len(req.Sessions); n > 0 {
		last = req.Sessions[n-1].CompletedAt
	}
	return cache.Fingerprint(OpFeedbackAnalysis, map[string]any{
		"userId":   req.UserID,
		"sessions": len(req.Sessions),
		"last":     last,
	})
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// Remote calls. Each makes exactly one attempt and validates the payload
// strictly; malformed responses are errors so the caller can fall back.

func (s *Service) remoteRecommendation(ctx context.Context, req RecommendationRequest) (*Recommendation, error) {
	s.metrics.RecordRemoteCall(OpRecommendation)
	out, err := s.completer.Complete(ctx, CompletionRequest{
		System: coachSystemPrompt,
		Prompt: recommendationPrompt(req),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}
	var rec Recommendation
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		return nil, fmt.Errorf("parse recommendation response: %w", err)
	}
	if len(rec.Recommendations) == 0 {
		rec.Recommendations = []string{"Focus on full-body mobility work to maintain movement quality and prevent soreness."}
		rec.FocusAreas = []string{"full_body"}
	}
	if rec.FocusAreas == nil {
		rec.FocusAreas = []string{}
	}
	return &rec, nil
}

func (s *Service) remotePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	s.metrics.RecordRemoteCall(OpPlan)
	if len(req.FocusAreas) == 0 {
		req.FocusAreas = []string{"full_body"}
	}
	if req.TimeAvailable <= 0 {
		req.TimeAvailable = 15
	}
	if req.Intensity == "" {
		req.Intensity = IntensityModerate
	}

	// Show the model a slice of the catalog so generated tasks stay within
	// exercises the app actually has.
	var suggestions []catalog.Exercise
	if pool := loadExercisePool(ctx, s.catalog); len(pool) > 0 {
		if len(pool) > 20 {
			pool = pool[:20]
		}
		suggestions = pool
	}

	out, err := s.completer.Complete(ctx, CompletionRequest{
		System: coachSystemPrompt,
		Prompt: planPrompt(req, suggestions),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		return nil, fmt.Errorf("parse plan response: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("plan response has no tasks")
	}
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("plan response task %d missing title", i)
		}
		if t.Duration <= 0 {
			return nil, fmt.Errorf("plan response task %d has invalid duration %d", i, t.Duration)
		}
		if t.Category == "" {
			t.Category = "recovery"
		}
		t.IsCompleted = false
	}
	if plan.Title == "" {
		plan.Title = planTitle(req.FocusAreas, req.Intensity)
	}
	if plan.Description == "" {
		plan.Description = planDescription(req.FocusAreas, req.Intensity, req.TimeAvailable)
	}
	return &plan, nil
}

var validQualities = map[string]bool{
	"excellent": true,
	"good":      true,
	"fair":      true,
	"poor":      true,
}

func (s *Service) remoteMovement(ctx context.Context, imageData string) (*MovementAssessment, error) {
	s.metrics.RecordRemoteCall(OpMovementAnalysis)
	out, err := s.completer.Complete(ctx, CompletionRequest{
		System:   coachSystemPrompt,
		Prompt:   movementPrompt,
		ImageURL: imageData,
		JSON:     true,
	})
	if err != nil {
		return nil, err
	}
	var ma MovementAssessment
	if err := json.Unmarshal([]byte(out), &ma); err != nil {
		return nil, fmt.Errorf("parse movement response: %w", err)
	}
	if !validQualities[strings.ToLower(ma.Quality)] {
		return nil, fmt.Errorf("movement response has invalid quality %q", ma.Quality)
	}
	ma.Quality = strings.ToLower(ma.Quality)
	if len(ma.Feedback) == 0 {
		ma.Feedback = fallbackMovementAssessment().Feedback
	}
	if ma.Suggestions == nil {
		ma.Suggestions = []string{}
	}
	return &ma, nil
}

func (s *Service) remoteFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackAnalysis, error) {
	s.metrics.RecordRemoteCall(OpFeedbackAnalysis)
	out, err := s.completer.Complete(ctx, CompletionRequest{
		System: coachSystemPrompt,
		Prompt: feedbackPrompt(req),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}
	var fa FeedbackAnalysis
	if err := json.Unmarshal([]byte(out), &fa); err != nil {
		return nil, fmt.Errorf("parse feedback response: %w", err)
	}
	if len(fa.Insights) == 0 {
		def := fallbackFeedbackAnalysis()
		fa.Insights = def.Insights
		if len(fa.Recommendations) == 0 {
			fa.Recommendations = def.Recommendations
		}
	}
	if fa.Recommendations == nil {
		fa.Recommendations = []string{}
	}
	return &fa, nil
}
