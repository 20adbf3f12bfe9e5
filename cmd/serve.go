package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rebound-ai/rebound/pkg/advisor"
	"github.com/rebound-ai/rebound/pkg/advisor/openai"
	"github.com/rebound-ai/rebound/pkg/cache"
	"github.com/rebound-ai/rebound/pkg/catalog"
	"github.com/rebound-ai/rebound/pkg/config"
	"github.com/rebound-ai/rebound/pkg/metrics"
	"github.com/rebound-ai/rebound/pkg/ratelimit"
	"github.com/rebound-ai/rebound/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Rebound coaching HTTP server",
	Long: `Starts an HTTP server that provides recovery coaching operations:
recommendations, session plans, movement analysis, and feedback insights.

Every operation is backed by a response cache and a sliding-window rate
limiter; when the remote model is unavailable or rate-limited, results are
generated locally from the exercise catalog.

Example:
  rebound serve --port 8080

The server exposes:
  POST /v1/recommendation  - Soreness-driven recovery recommendations
  POST /v1/plan            - Structured recovery plan
  POST /v1/movement        - Movement form analysis from an image
  POST /v1/feedback        - Session feedback insights
  GET  /v1/exercises/{id}  - Exercise catalog lookup
  GET  /v1/cache/stats     - Response cache statistics
  GET  /health             - Health check
  GET  /metrics            - Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server settings
	serveCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")

	// Remote model settings
	serveCmd.Flags().String("openai-key", "", "OpenAI API key (or use OPENAI_API_KEY)")
	serveCmd.Flags().String("model", "gpt-4o", "OpenAI chat model")

	// Catalog settings
	serveCmd.Flags().String("catalog", "memory", "Exercise catalog backend (memory, sqlite)")
	serveCmd.Flags().String("catalog-path", "", "SQLite catalog database path")

	// Auth settings
	serveCmd.Flags().String("api-keys", "", "Comma-separated list of valid API keys (or use REBOUND_API_KEYS)")

	// Bind to viper
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("openai.model", serveCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("catalog.backend", serveCmd.Flags().Lookup("catalog"))
	_ = viper.BindPFlag("catalog.path", serveCmd.Flags().Lookup("catalog-path"))
}

// Server holds the HTTP server state.
type Server struct {
	advisor   *advisor.Service
	cache     *cache.Store
	limiter   *ratelimit.Limiter
	catalog   catalog.Catalog
	metrics   *metrics.Metrics
	validKeys map[string]bool
	hasAuth   bool
}

// MovementRequest is the JSON request body for /v1/movement.
type MovementRequest struct {
	Image string `json:"image"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	openaiKey, _ := cmd.Flags().GetString("openai-key")
	apiKeysStr, _ := cmd.Flags().GetString("api-keys")

	// Resolve from environment
	if openaiKey == "" {
		openaiKey = cfg.OpenAI.APIKey
	}
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKeysStr == "" {
		apiKeysStr = os.Getenv("REBOUND_API_KEYS")
	}

	// Parse API keys
	validKeys := make(map[string]bool)
	for _, key := range cfg.Auth.APIKeys {
		if key != "" {
			validKeys[key] = true
		}
	}
	if apiKeysStr != "" {
		for _, key := range strings.Split(apiKeysStr, ",") {
			key = strings.TrimSpace(key)
			if key != "" {
				validKeys[key] = true
			}
		}
	}

	ctx := context.Background()

	// Tracing
	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Exporter:    cfg.Telemetry.Tracing.Exporter,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		SampleRate:  cfg.Telemetry.Tracing.SampleRate,
		ServiceName: "rebound",
		Insecure:    cfg.Telemetry.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	// Exercise catalog
	cat, err := openCatalog(cfg.Catalog)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	// Remote model client (optional; without it every request goes local)
	var completer advisor.Completer
	remoteModel := "disabled"
	if openaiKey != "" {
		client, err := openai.NewClient(openai.Config{
			APIKey:    openaiKey,
			Model:     cfg.OpenAI.Model,
			BaseURL:   cfg.OpenAI.BaseURL,
			Timeout:   cfg.OpenAI.Timeout,
			MaxTokens: cfg.OpenAI.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		completer = client
		remoteModel = client.ModelName()
	}

	store := cache.New(cache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer func() { _ = store.Close() }()

	limiter := ratelimit.New(rateWindows(cfg.RateLimit)...)
	m := metrics.New()

	svc := advisor.New(advisor.Config{
		Cache:     store,
		Limiter:   limiter,
		Catalog:   cat,
		Completer: completer,
		Metrics:   m,
	})

	server := &Server{
		advisor:   svc,
		cache:     store,
		limiter:   limiter,
		catalog:   cat,
		metrics:   m,
		validKeys: validKeys,
		hasAuth:   len(validKeys) > 0,
	}

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/recommendation", m.Middleware("/v1/recommendation", server.auth(server.handleRecommendation)))
	mux.HandleFunc("/v1/plan", m.Middleware("/v1/plan", server.auth(server.handlePlan)))
	mux.HandleFunc("/v1/movement", m.Middleware("/v1/movement", server.auth(server.handleMovement)))
	mux.HandleFunc("/v1/feedback", m.Middleware("/v1/feedback", server.auth(server.handleFeedback)))
	mux.HandleFunc("GET /v1/exercises/{id}", server.handleExercise)
	mux.HandleFunc("/v1/cache/stats", server.handleCacheStats)
	mux.HandleFunc("/health", server.handleHealth)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/", server.handleRoot)

	// CORS middleware
	handler := corsMiddleware(mux)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Fprintln(os.Stderr, "\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	// Start server
	fmt.Printf("Rebound server starting on %s\n", addr)
	fmt.Printf("  Remote model: %s\n", remoteModel)
	fmt.Printf("  Catalog: %s\n", cfg.Catalog.Backend)
	fmt.Printf("  Auth: %v (%d keys)\n", server.hasAuth, len(validKeys))
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Printf("  POST http://%s/v1/recommendation\n", addr)
	fmt.Printf("  POST http://%s/v1/plan\n", addr)
	fmt.Printf("  POST http://%s/v1/movement\n", addr)
	fmt.Printf("  POST http://%s/v1/feedback\n", addr)
	fmt.Printf("  GET  http://%s/health\n", addr)
	fmt.Println()

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	fmt.Println("Server stopped")
	return nil
}

// openCatalog builds the configured exercise catalog backend.
func openCatalog(cfg config.CatalogConfig) (catalog.Catalog, error) {
	switch cfg.Backend {
	case "sqlite":
		cat, err := catalog.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog %s: %w", cfg.Path, err)
		}
		return cat, nil
	case "memory", "":
		return catalog.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend: %s (use 'memory' or 'sqlite')", cfg.Backend)
	}
}

func rateWindows(cfg config.RateLimitConfig) []ratelimit.Window {
	var windows []ratelimit.Window
	if cfg.PerMinute > 0 {
		windows = append(windows, ratelimit.Window{Name: "1m", Duration: time.Minute, Limit: cfg.PerMinute})
	}
	if cfg.PerHour > 0 {
		windows = append(windows, ratelimit.Window{Name: "1h", Duration: time.Hour, Limit: cfg.PerHour})
	}
	if len(windows) == 0 {
		windows = ratelimit.DefaultWindows()
	}
	return windows
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// auth wraps a handler with Bearer token checking when API keys are set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if !s.hasAuth {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if !s.validKeys[token] {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"name":    "Rebound API",
		"version": "0.1.0",
		"endpoints": map[string]string{
			"recommendation": "POST /v1/recommendation",
			"plan":           "POST /v1/plan",
			"movement":       "POST /v1/movement",
			"feedback":       "POST /v1/feedback",
			"exercise":       "GET /v1/exercises/{id}",
			"cache_stats":    "GET /v1/cache/stats",
			"health":         "GET /health",
		},
	})
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req advisor.RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	rec := s.advisor.RecommendRecovery(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req advisor.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.TimeAvailable < 0 {
		http.Error(w, "timeAvailable must be non-negative", http.StatusBadRequest)
		return
	}

	plan := s.advisor.GeneratePlan(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(plan)
}

func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Image == "" {
		http.Error(w, "'image' is required", http.StatusBadRequest)
		return
	}

	assessment := s.advisor.AnalyzeMovement(r.Context(), req.Image)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(assessment)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req advisor.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	analysis := s.advisor.AnalyzeFeedback(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(analysis)
}

func (s *Server) handleExercise(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid exercise id", http.StatusBadRequest)
		return
	}

	ex, err := s.catalog.ExerciseByID(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		http.Error(w, "Exercise not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Catalog unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ex)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"cache": map[string]interface{}{
			"hits":        stats.Hits,
			"misses":      stats.Misses,
			"sets":        stats.Sets,
			"evictions":   stats.Evictions,
			"expirations": stats.Expirations,
			"size":        stats.Size,
			"max_entries": stats.MaxEntries,
			"hit_rate":    stats.HitRate(),
		},
		"rate_limit": map[string]interface{}{
			"remaining": s.limiter.Remaining(),
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
