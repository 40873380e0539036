// Package mcpserver exposes the question pipeline as Model Context Protocol
// tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flightqa/flightqa/internal/answer"
	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/policy"
)

const (
	Name    = "flightqa"
	Version = "1.0.0"

	ToolSearchFlights = "search_flights"
	ToolListAirlines  = "list_airlines"

	defaultTimeout = 2 * time.Minute
)

type Answerer interface {
	Answer(ctx context.Context, question string) (answer.Reply, error)
}

type AirlineDirectory interface {
	Airlines() []policy.Airline
}

type Dependencies struct {
	Answerer Answerer
	Airlines AirlineDirectory
	Logger   *slog.Logger
	// Timeout bounds one search_flights call. Zero means two minutes.
	Timeout time.Duration
}

// New builds an MCP server with the flight tools registered.
func New(deps Dependencies) (*server.MCPServer, error) {
	if deps.Answerer == nil {
		return nil, errors.New("mcp server requires an answerer")
	}
	if deps.Airlines == nil {
		return nil, errors.New("mcp server requires an airline directory")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultTimeout
	}

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Answers natural-language questions about flights between India and Vietnam, including airline luggage policies."),
	)
	s.AddTool(searchFlightsTool(), handleSearchFlights(deps))
	s.AddTool(listAirlinesTool(), handleListAirlines(deps))
	return s, nil
}

func searchFlightsTool() mcp.Tool {
	return mcp.NewTool(ToolSearchFlights,
		mcp.WithDescription("Answer a flight question by generating SQL over the flight table and summarizing the rows. Luggage questions also get the relevant airline policy."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural-language question, e.g. cheapest flight from Delhi to Hanoi"),
			mcp.MaxLength(answer.MaxQuestionRunes),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func listAirlinesTool() mcp.Tool {
	return mcp.NewTool(ToolListAirlines,
		mcp.WithDescription("List the airlines the service knows and whether a luggage policy document exists for each."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func handleSearchFlights(deps Dependencies) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireString("question")
		if err != nil {
			observability.IncrementMCPToolCall(ToolSearchFlights, "invalid")
			return mcp.NewToolResultError(err.Error()), nil
		}
		question, err := answer.NormalizeQuestion(raw)
		if err != nil {
			observability.IncrementMCPToolCall(ToolSearchFlights, "invalid")
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx, cancel := context.WithTimeout(ctx, deps.Timeout)
		defer cancel()
		started := time.Now()
		reply, err := deps.Answerer.Answer(ctx, question)
		if err != nil {
			deps.Logger.WarnContext(ctx, "mcp_search_flights_failed",
				slog.String("error", err.Error()),
				slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			)
			observability.IncrementMCPToolCall(ToolSearchFlights, "error")
			return mcp.NewToolResultError(answer.ErrorMessage(err)), nil
		}

		payload, err := json.Marshal(reply)
		if err != nil {
			return nil, fmt.Errorf("encode reply: %w", err)
		}
		observability.IncrementMCPToolCall(ToolSearchFlights, "ok")
		deps.Logger.InfoContext(ctx, "mcp_search_flights_completed",
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
		return mcp.NewToolResultText(string(payload)), nil
	}
}

type airlineView struct {
	Name      string `json:"name"`
	HasPolicy bool   `json:"has_policy"`
}

func handleListAirlines(deps Dependencies) server.ToolHandlerFunc {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		airlines := deps.Airlines.Airlines()
		out := make([]airlineView, 0, len(airlines))
		for _, airline := range airlines {
			out = append(out, airlineView{Name: airline.Name, HasPolicy: airline.PolicyFile != ""})
		}
		payload, err := json.Marshal(map[string]any{"airlines": out})
		if err != nil {
			return nil, err
		}
		observability.IncrementMCPToolCall(ToolListAirlines, "ok")
		return mcp.NewToolResultText(string(payload)), nil
	}
}
