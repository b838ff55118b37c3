// Package prompts implements MCP prompt handlers.
//
// Prompts are user-triggered workflows (like slash commands) that tell
// the host which tools to call and how to present the result.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the modwatch-status MCP prompt.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("modwatch-status",
		mcp.WithPromptDescription(
			"Check a DayZ server for mod changes and summarize what changed recently.",
		),
		mcp.WithArgument("server",
			mcp.ArgumentDescription("Server id or name. Leave empty when only one server is configured."),
		),
	)
}

// Handle processes the modwatch-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	server := ""
	if args := req.Params.Arguments; args != nil {
		server = args["server"]
	}

	target := "the configured server"
	serverArg := ""
	if server != "" {
		target = fmt.Sprintf("server '%s'", server)
		serverArg = fmt.Sprintf(" with server='%s'", server)
	}

	return &mcp.GetPromptResult{
		Description: "Mod status of " + target,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please check the mods of %s.\n\n"+
						"1. Run `modwatch_check`%s (keep dry_run=true so nothing is persisted)\n"+
						"2. Run `modwatch_history`%s to see what changed in earlier runs\n"+
						"3. Summarize: which mods are new or updated right now, what their changelogs say, "+
						"and whether anything was removed\n"+
						"4. If the query failed, say so plainly and suggest checking the server address and query port",
					target, serverArg, serverArg,
				)),
			},
		},
	}, nil
}
