package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/storage"
)

// MCPDeps carries the wired components the MCP tools need.
type MCPDeps struct {
	Store       *storage.Store
	Coordinator *pipeline.Coordinator
	Predictor   *predict.Predictor
	Restaurants *restaurant.Manager
}

const mcpInstructions = `Covercast predicts restaurant covers for upcoming services.
Use predict_demand for a full forecast with staffing and reasoning,
find_patterns to inspect similar historical services, record_actuals to
report what actually happened after a predicted service, and import_event
to feed in event announcements that affect demand.`

// NewMCPServer builds the MCP server exposing the prediction pipeline as
// tools for agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"covercast",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions(mcpInstructions),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("predict_demand",
		mcp.WithDescription("Predict covers for a restaurant service, with a staffing recommendation and reasoning."),
		mcp.WithString("service_date",
			mcp.Description("Service date, YYYY-MM-DD."),
			mcp.Required(),
		),
		mcp.WithString("service_type",
			mcp.Description("One of lunch, dinner, brunch."),
			mcp.Required(),
		),
		mcp.WithString("restaurant_id",
			mcp.Description("Restaurant identifier. Defaults to \"default\"."),
		),
	), mcpPredictDemand(deps))

	s.AddTool(mcp.NewTool("find_patterns",
		mcp.WithDescription("Find historical services similar to a date and service type, or to a free-text description."),
		mcp.WithString("query",
			mcp.Description("Free-text service description to search for."),
		),
		mcp.WithString("service_date",
			mcp.Description("Service date, YYYY-MM-DD. Used when query is empty."),
		),
		mcp.WithString("service_type",
			mcp.Description("One of lunch, dinner, brunch."),
		),
	), mcpFindPatterns(deps))

	s.AddTool(mcp.NewTool("record_actuals",
		mcp.WithDescription("Record the covers actually served for a past prediction. Feeds the accuracy report and the pattern corpus."),
		mcp.WithString("prediction_id",
			mcp.Description("ID of the prediction being scored."),
			mcp.Required(),
		),
		mcp.WithNumber("actual_covers",
			mcp.Description("Covers actually served."),
			mcp.Required(),
		),
		mcp.WithString("notes",
			mcp.Description("Optional context on how the service went."),
		),
	), mcpRecordActuals(deps))

	s.AddTool(mcp.NewTool("import_event",
		mcp.WithDescription("Import an event announcement as pasted text. Events are extracted in the background and feed future predictions."),
		mcp.WithString("content",
			mcp.Description("Announcement text."),
			mcp.Required(),
		),
		mcp.WithString("service_date",
			mcp.Description("Optional date hint, YYYY-MM-DD."),
		),
		mcp.WithString("title",
			mcp.Description("Optional document title."),
		),
	), mcpImportEvent(deps))

	s.AddResource(mcp.NewResource(
		"covercast://restaurant/default",
		"Default restaurant profile",
		mcp.WithResourceDescription("Capacity, usual staffing, and service types of the default restaurant."),
		mcp.WithMIMEType("application/json"),
	), mcpResourceRestaurant(deps))

	s.AddResource(mcp.NewResource(
		"covercast://predictions/recent",
		"Recent predictions",
		mcp.WithResourceDescription("The ten most recent predictions, newest first."),
		mcp.WithMIMEType("application/json"),
	), mcpResourceRecent(deps))

	return s
}

func mcpPredictDemand(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		serviceDate, err := req.RequireString("service_date")
		if err != nil {
			return mcpError(err.Error()), nil
		}
		serviceType, err := req.RequireString("service_type")
		if err != nil {
			return mcpError(err.Error()), nil
		}

		pred, _, err := deps.Coordinator.Predict(ctx, pipeline.Request{
			RestaurantID: req.GetString("restaurant_id", restaurant.DefaultID),
			ServiceDate:  serviceDate,
			ServiceType:  serviceType,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("prediction failed: %v", err)), nil
		}

		out, err := json.Marshal(pred)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding prediction: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpFindPatterns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		serviceType := req.GetString("service_type", "")

		text := req.GetString("query", "")
		if text == "" {
			serviceDate := req.GetString("service_date", "")
			if serviceDate == "" || serviceType == "" {
				return mcpError("either query or service_date and service_type are required"), nil
			}
			date, err := time.Parse("2006-01-02", serviceDate)
			if err != nil {
				return mcpError(fmt.Sprintf("service_date %q is not a YYYY-MM-DD date", serviceDate)), nil
			}
			text = predict.ContextString(pipeline.ServiceContextFor(deps.Store, date), serviceType)
		}

		patterns, _ := deps.Predictor.Search(ctx, text, serviceType)
		if patterns == nil {
			patterns = []predict.Pattern{}
		}
		out, err := json.Marshal(patterns)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding patterns: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpRecordActuals(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		predictionID, err := req.RequireString("prediction_id")
		if err != nil {
			return mcpError(err.Error()), nil
		}
		actualCovers := req.GetInt("actual_covers", 0)
		if actualCovers <= 0 {
			return mcpError("actual_covers must be positive"), nil
		}

		result, err := recordFeedback(deps.Store, predictionID, actualCovers, req.GetString("notes", ""))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("prediction %s not found", predictionID)), nil
		}
		if errors.Is(err, storage.ErrConflict) {
			return mcpError(fmt.Sprintf("feedback already recorded for prediction %s", predictionID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("recording feedback: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded %d covers for %s (error %.1f%%). Derived pattern %s for future retrievals.",
			actualCovers, predictionID, result.ErrorPct, result.PatternID)), nil
	}
}

func mcpImportEvent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError(err.Error()), nil
		}
		serviceDate := req.GetString("service_date", "")
		if serviceDate != "" {
			if _, err := time.Parse("2006-01-02", serviceDate); err != nil {
				return mcpError(fmt.Sprintf("service_date %q is not a YYYY-MM-DD date", serviceDate)), nil
			}
		}

		title := req.GetString("title", "")
		if title == "" {
			title = "pasted text"
		}
		doc := storage.Doc{
			ID:          uuid.New().String(),
			Title:       title,
			Source:      "text",
			ContentType: "text/plain",
			Content:     content,
			ServiceDate: serviceDate,
			CreatedAt:   time.Now().UTC(),
		}
		if err := queueImport(deps.Store, doc); err != nil {
			return mcpError(fmt.Sprintf("queueing import: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued document %s for event extraction.", doc.ID)), nil
	}
}

func mcpResourceRestaurant(deps MCPDeps) server.ResourceHandlerFunc {
	return func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		profile, err := deps.Restaurants.Get(restaurant.DefaultID)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		out, err := json.Marshal(profile)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(out),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		preds, err := deps.Store.ListPredictions("", 10)
		if err != nil {
			return nil, fmt.Errorf("listing predictions: %w", err)
		}
		summaries := make([]predictionSummary, 0, len(preds))
		for _, p := range preds {
			summaries = append(summaries, summarizePrediction(p))
		}
		out, err := json.Marshal(summaries)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(out),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func mcpError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
