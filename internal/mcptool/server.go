// Package mcptool exposes the profile update tool over the Model Context
// Protocol so agents configured with an MCP server can reach it.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ashureev/riata-onboarding/internal/profile"
	"github.com/ashureev/riata-onboarding/internal/session"
	"github.com/ashureev/riata-onboarding/internal/voice"
)

// ErrUnknownConversation is returned when no live session is bound to the
// conversation id.
var ErrUnknownConversation = errors.New("no active session for conversation")

// Sessions resolves a platform conversation to its live session.
type Sessions interface {
	ByConversation(conversationID string) *session.Session
}

// UpdateInput is the tool argument.
type UpdateInput struct {
	ConversationID string         `json:"conversation_id" jsonschema:"platform conversation id of the running call"`
	Fields         map[string]any `json:"fields" jsonschema:"newly extracted profile fields keyed by field name"`
}

// UpdateOutput is the structured tool result.
type UpdateOutput struct {
	Message    string   `json:"message"`
	Score      int      `json:"score"`
	Milestones []string `json:"milestones,omitempty"`
}

func toolDescription() string {
	keys := make([]string, 0, len(profile.TrackedFields))
	for _, f := range profile.TrackedFields {
		keys = append(keys, f.Key())
	}
	return "Record profile information the learner just shared. Known fields: " +
		strings.Join(keys, ", ") + ". Send only the fields that changed."
}

// NewServer builds an MCP server with the UPDATE_PROFILE tool.
func NewServer(sessions Sessions, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "riata-onboarding", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        voice.ToolUpdateProfile,
		Description: toolDescription(),
	}, updateProfile(sessions))
	return server
}

// Handler serves the MCP server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func updateProfile(sessions Sessions) mcp.ToolHandlerFor[UpdateInput, UpdateOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, in UpdateInput) (*mcp.CallToolResult, UpdateOutput, error) {
		s := sessions.ByConversation(in.ConversationID)
		if s == nil {
			slog.Warn("MCP profile update for unknown conversation", "conversation_id", in.ConversationID)
			return nil, UpdateOutput{}, fmt.Errorf("%w: %q", ErrUnknownConversation, in.ConversationID)
		}

		res := s.ApplyUpdate(in.Fields)
		out := UpdateOutput{Message: voice.ToolAck, Score: res.Score}
		for _, m := range res.Milestones {
			out.Milestones = append(out.Milestones, m.Message)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: voice.ToolAck}},
		}, out, nil
	}
}
