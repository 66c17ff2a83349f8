package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rgabriel/jmap-react/jmap"
	"github.com/rgabriel/jmap-react/react"
)

// maxReactionSize bounds the reaction string; reactions are meant to be short.
const maxReactionSize = 256

// ReactToThreadHandler creates a handler that replies to a thread with a reaction
func ReactToThreadHandler(reactor Reactor) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		// Get required parameters
		targetID, ok := args["target_id"].(string)
		if !ok || strings.TrimSpace(targetID) == "" {
			return mcp.NewToolResultError("target_id is required"), nil
		}

		reaction, ok := args["reaction"].(string)
		if !ok || reaction == "" {
			return mcp.NewToolResultError("reaction is required"), nil
		}
		if len(reaction) > maxReactionSize {
			return mcp.NewToolResultError(fmt.Sprintf("reaction exceeds maximum size of %d bytes", maxReactionSize)), nil
		}

		// Get optional parameters; a message given as "" still adds a message part
		var message *string
		if m, ok := args["message"].(string); ok {
			message = &m
		}

		strategy, _ := args["strategy"].(string)
		selector, err := jmap.LookupSelector(strategy)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if strategy == "" {
			strategy = jmap.DefaultSelector
		}

		dryRun := false
		if dr, ok := args["dry_run"].(bool); ok {
			dryRun = dr
		}

		result, err := reactor.React(ctx, react.Request{
			TargetID: targetID,
			Reaction: reaction,
			Message:  message,
			Selector: selector,
			DryRun:   dryRun,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to send reaction: %v", err)), nil
		}

		// Format response
		response := map[string]interface{}{
			"success":   len(result.Problems) == 0,
			"target_id": targetID,
			"strategy":  strategy,
			"dry_run":   dryRun,
		}
		if result.Target != nil {
			response["email_id"] = result.Target.ID
			response["subject"] = result.Target.Subject
		}
		if result.Draft != nil && len(result.Draft.To) > 0 {
			response["to"] = result.Draft.To[0].Email
		}
		if len(result.Problems) > 0 {
			response["problems"] = result.Problems
		}
		if dryRun {
			response["draft"] = result.Draft
			response["preview"] = string(result.Preview)
		} else {
			response["response"] = result.Response
		}

		jsonData, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err)), nil
		}

		return mcp.NewToolResultText(string(jsonData)), nil
	}
}
