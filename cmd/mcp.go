package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rebound-ai/rebound/pkg/advisor"
	"github.com/rebound-ai/rebound/pkg/advisor/openai"
	"github.com/rebound-ai/rebound/pkg/cache"
	"github.com/rebound-ai/rebound/pkg/config"
	"github.com/rebound-ai/rebound/pkg/ratelimit"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start Rebound as an MCP server",
	Long: `Starts Rebound as a Model Context Protocol (MCP) server.

This allows AI assistants like Claude, Amp, and Cursor to use Rebound's
recovery coaching operations directly.

Transports:
  stdio (default) - For local desktop apps (Claude Desktop, Cursor)
  http            - For remote/cloud deployments (hosted MCP server)

Tools exposed:
  recommend_recovery    - Soreness-driven recovery recommendations
  generate_plan         - Structured recovery session plan
  analyze_movement      - Movement form analysis from an image
  analyze_feedback      - Insights over session feedback

Resources exposed:
  rebound://system-prompt - System prompt for AI assistants
  rebound://status        - Cache and rate-limiter state

Example:
  # Local stdio server (Claude Desktop, Cursor, Amp)
  rebound mcp

  # Remote HTTP server (hosted deployment)
  rebound mcp --transport http --port 8081

Configure in Claude Desktop (claude_desktop_config.json):
  {
    "mcpServers": {
      "rebound": {
        "command": "rebound",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	// Transport settings
	mcpCmd.Flags().String("transport", "stdio", "Transport type: stdio or http")
	mcpCmd.Flags().Int("port", 8081, "HTTP server port (for http transport)")
	mcpCmd.Flags().String("host", "0.0.0.0", "HTTP server host (for http transport)")

	// Remote model settings
	mcpCmd.Flags().String("openai-key", "", "OpenAI API key (or use OPENAI_API_KEY)")
	mcpCmd.Flags().String("model", "gpt-4o", "OpenAI chat model")

	// Catalog settings
	mcpCmd.Flags().String("catalog", "memory", "Exercise catalog backend (memory, sqlite)")
	mcpCmd.Flags().String("catalog-path", "", "SQLite catalog database path")
}

// MCPServer wraps the MCP server with Rebound's coaching operations.
type MCPServer struct {
	advisor *advisor.Service
	cache   *cache.Store
	limiter *ratelimit.Limiter
	remote  bool
}

func runMCP(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	openaiKey, _ := cmd.Flags().GetString("openai-key")
	model, _ := cmd.Flags().GetString("model")
	catalogBackend, _ := cmd.Flags().GetString("catalog")
	catalogPath, _ := cmd.Flags().GetString("catalog-path")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// Resolve API key from environment
	if openaiKey == "" {
		openaiKey = cfg.OpenAI.APIKey
	}
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}

	cat, err := openCatalog(config.CatalogConfig{Backend: catalogBackend, Path: catalogPath})
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	var completer advisor.Completer
	if openaiKey != "" {
		client, err := openai.NewClient(openai.Config{
			APIKey:  openaiKey,
			Model:   model,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.OpenAI.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		completer = client
	}

	store := cache.New(cache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	defer func() { _ = store.Close() }()

	limiter := ratelimit.New(rateWindows(cfg.RateLimit)...)

	mcpSrv := &MCPServer{
		advisor: advisor.New(advisor.Config{
			Cache:     store,
			Limiter:   limiter,
			Catalog:   cat,
			Completer: completer,
		}),
		cache:   store,
		limiter: limiter,
		remote:  completer != nil,
	}

	// Create MCP server with capabilities
	s := server.NewMCPServer(
		"Rebound",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(false),
	)

	mcpSrv.registerTools(s)
	mcpSrv.registerResources(s)
	mcpSrv.registerPrompts(s)

	// Start server based on transport
	switch transport {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}

	case "http":
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("Rebound MCP server starting on http://%s\n", addr)
		fmt.Printf("  Endpoint: http://%s/mcp\n", addr)
		fmt.Printf("  Health:   http://%s/health\n", addr)
		fmt.Println()

		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok","server":"rebound-mcp"}`))
		})

		// MCP endpoint with stateful sessions
		mcpHandler := server.NewStreamableHTTPServer(s, server.WithStateful(true))
		mux.Handle("/mcp", mcpHandler)

		httpServer := &http.Server{
			Addr:    addr,
			Handler: mux,
		}

		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}

	default:
		return fmt.Errorf("unsupported transport: %s (use 'stdio' or 'http')", transport)
	}

	return nil
}

func (m *MCPServer) registerTools(s *server.MCPServer) {
	recommendTool := mcp.NewTool("recommend_recovery",
		mcp.WithDescription(`Generate recovery recommendations for an athlete based on reported muscle soreness.

Results come from a coaching model when available, and from a deterministic
soreness-driven fallback otherwise, so the tool always returns advice.

INPUT: User ID and a list of soreness entries ({area, level 0-10})
OUTPUT: Recommendations and focus areas as JSON`),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("The athlete's user ID"),
		),
		mcp.WithArray("soreness",
			mcp.Description("Array of soreness entries. Each entry has 'area' (string, snake_case body area) and 'level' (number 0-10)."),
		),
	)
	s.AddTool(recommendTool, m.handleRecommend)

	planTool := mcp.NewTool("generate_plan",
		mcp.WithDescription(`Generate a structured recovery session plan.

The plan starts with a warm-up, fits the available time exactly when generated
locally, and respects available equipment and focus areas.

INPUT: Time available (minutes), focus areas, intensity, equipment
OUTPUT: Plan with title, description, and ordered tasks as JSON`),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("The athlete's user ID"),
		),
		mcp.WithNumber("time_available",
			mcp.Description("Minutes available for the session (default: 15)"),
		),
		mcp.WithArray("focus_areas",
			mcp.Description("Body areas to focus on, e.g. [\"lower_body\", \"back\"] (default: [\"full_body\"])"),
		),
		mcp.WithString("intensity",
			mcp.Description("Session intensity: light, moderate, or intense (default: moderate)"),
		),
		mcp.WithArray("equipment",
			mcp.Description("Available equipment, e.g. [\"foam_roller\"] (default: none)"),
		),
	)
	s.AddTool(planTool, m.handlePlan)

	movementTool := mcp.NewTool("analyze_movement",
		mcp.WithDescription(`Analyze an athlete's movement form from an image.

Returns a quality rating (excellent/good/fair/poor) with specific feedback
and improvement suggestions. Requires a configured remote model for real
analysis; otherwise returns general form guidance.`),
		mcp.WithString("image",
			mcp.Required(),
			mcp.Description("Image as a data URL or base64-encoded payload"),
		),
	)
	s.AddTool(movementTool, m.handleMovement)

	feedbackTool := mcp.NewTool("analyze_feedback",
		mcp.WithDescription(`Analyze recovery session feedback for trends and insights.

INPUT: User ID and an array of session feedback entries
OUTPUT: Insights and recommendations as JSON`),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("The athlete's user ID"),
		),
		mcp.WithArray("sessions",
			mcp.Required(),
			mcp.Description("Array of session feedback objects with 'sessionId', 'rating', 'effectiveness', 'difficulty', 'enjoyment', 'completedAt', and optional 'feedback' and 'exercises'."),
		),
	)
	s.AddTool(feedbackTool, m.handleFeedback)
}

// System prompt that guides AI assistants to use the coaching tools.
const systemPromptContent = `You have access to Rebound, a recovery coaching service for athletes.

When an athlete mentions soreness, fatigue, or recovery:
1. Use recommend_recovery with their reported soreness levels for targeted advice
2. Use generate_plan to build a session that fits their available time and equipment
3. Use analyze_feedback over past sessions to spot what is and is not working

The tools always return a usable result: when the remote coaching model is
rate-limited or unavailable, Rebound generates advice deterministically from
its exercise catalog. Treat soreness levels above 7 as high and recommend
gentle work only for those areas.`

func (m *MCPServer) registerResources(s *server.MCPServer) {
	// System prompt resource - hosts can include this in context
	systemPrompt := mcp.NewResource(
		"rebound://system-prompt",
		"Rebound System Prompt",
		mcp.WithResourceDescription("System prompt that guides AI to use the coaching tools effectively"),
		mcp.WithMIMEType("text/plain"),
	)

	s.AddResource(systemPrompt, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "rebound://system-prompt",
				MIMEType: "text/plain",
				Text:     systemPromptContent,
			},
		}, nil
	})

	// Status resource - shows cache and limiter state
	statusResource := mcp.NewResource(
		"rebound://status",
		"Rebound Status",
		mcp.WithResourceDescription("Current response cache statistics and rate-limiter state"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats := m.cache.Stats()
		status := map[string]interface{}{
			"cache": map[string]interface{}{
				"size":     stats.Size,
				"hits":     stats.Hits,
				"misses":   stats.Misses,
				"hit_rate": stats.HitRate(),
			},
			"rate_limit": map[string]interface{}{
				"remaining": m.limiter.Remaining(),
			},
			"remote_model_configured": m.remote,
		}
		statusJSON, _ := json.MarshalIndent(status, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "rebound://status",
				MIMEType: "application/json",
				Text:     string(statusJSON),
			},
		}, nil
	})
}

func (m *MCPServer) registerPrompts(s *server.MCPServer) {
	planPrompt := mcp.NewPrompt(
		"plan-recovery-session",
		mcp.WithPromptDescription("Build a recovery session for an athlete from their soreness report and available time"),
		mcp.WithArgument("soreness_json", mcp.ArgumentDescription("JSON array of soreness entries ({area, level})")),
		mcp.WithArgument("time_available", mcp.ArgumentDescription("Minutes available for the session")),
	)

	s.AddPrompt(planPrompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		sorenessJSON := request.Params.Arguments["soreness_json"]
		timeAvailable := request.Params.Arguments["time_available"]

		return &mcp.GetPromptResult{
			Description: "Plan a recovery session",
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.TextContent{
						Type: "text",
						Text: fmt.Sprintf(`An athlete reported this soreness:
%s

They have %s minutes available.

Please:
1. Call recommend_recovery with the soreness report to identify focus areas
2. Call generate_plan with those focus areas and the available time
3. Summarize the plan and explain why each task was chosen`, sorenessJSON, timeAvailable),
					},
				},
			},
		}, nil
	})
}

// sorenessInput mirrors the soreness entry shape in tool arguments.
type sorenessInput struct {
	Area  string  `json:"area"`
	Level float64 `json:"level"`
}

func parseSoreness(raw interface{}) ([]advisor.SorenessEntry, error) {
	if raw == nil {
		return nil, nil
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid soreness format: %v", err)
	}
	var inputs []sorenessInput
	if err := json.Unmarshal(rawJSON, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse soreness: %v", err)
	}
	entries := make([]advisor.SorenessEntry, len(inputs))
	for i, in := range inputs {
		entries[i] = advisor.SorenessEntry{Area: in.Area, Level: int(in.Level)}
	}
	return entries, nil
}

func parseStringList(raw interface{}) []string {
	if raw == nil {
		return nil
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(rawJSON, &list); err != nil {
		return nil
	}
	return list
}

func toolResultJSON(v interface{}) *mcp.CallToolResult {
	resultJSON, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(resultJSON))
}

func (m *MCPServer) handleRecommend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetFloat("user_id", 0)
	if userID <= 0 {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}

	soreness, err := parseSoreness(request.GetArguments()["soreness"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec := m.advisor.RecommendRecovery(ctx, advisor.RecommendationRequest{
		UserID:   int64(userID),
		Soreness: soreness,
	})
	return toolResultJSON(rec), nil
}

func (m *MCPServer) handlePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetFloat("user_id", 0)
	if userID <= 0 {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}

	args := request.GetArguments()
	plan := m.advisor.GeneratePlan(ctx, advisor.PlanRequest{
		UserID:        int64(userID),
		TimeAvailable: int(request.GetFloat("time_available", 0)),
		FocusAreas:    parseStringList(args["focus_areas"]),
		Intensity:     request.GetString("intensity", ""),
		Equipment:     parseStringList(args["equipment"]),
	})
	return toolResultJSON(plan), nil
}

func (m *MCPServer) handleMovement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	image, err := request.RequireString("image")
	if err != nil {
		return mcp.NewToolResultError("image parameter is required"), nil
	}

	assessment := m.advisor.AnalyzeMovement(ctx, image)
	return toolResultJSON(assessment), nil
}

func (m *MCPServer) handleFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetFloat("user_id", 0)
	if userID <= 0 {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}

	raw, ok := request.GetArguments()["sessions"]
	if !ok {
		return mcp.NewToolResultError("sessions parameter is required"), nil
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid sessions format: %v", err)), nil
	}
	var sessions []advisor.SessionFeedback
	if err := json.Unmarshal(rawJSON, &sessions); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse sessions: %v", err)), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultError("sessions array is empty"), nil
	}

	analysis := m.advisor.AnalyzeFeedback(ctx, advisor.FeedbackRequest{
		UserID:   int64(userID),
		Sessions: sessions,
	})
	return toolResultJSON(analysis), nil
}
