// Package executor spawns the external CLI tool that actually performs an
// agent's work, captures its output into a log file, and enforces the
// per-agent timeout.
package executor

import (
	"fmt"
	"strconv"
)

// Identifier names one of the five recognized executor tools.
type Identifier string

const (
	ClaudeCode  Identifier = "claude_code"
	GeminiCLI   Identifier = "gemini_cli"
	CodexCLI    Identifier = "codex_cli"
	CursorAgent Identifier = "cursor_agent"
	ContinueCLI Identifier = "continue_cli"
)

// buildArgs returns the base command and argument list for invoking id
// with payload, applying any executor-specific fields from params.
// claudeCodePath is the auto-discovered path for ClaudeCode; it is ignored
// for every other identifier.
func buildArgs(id Identifier, payload string, timeoutSeconds int, params map[string]any, claudeCodePath string) (command string, args []string, err error) {
	switch id {
	case ClaudeCode:
		command = claudeCodePath
		args = []string{"--timeout", strconv.Itoa(timeoutSeconds), "--prompt", payload}
		return command, args, nil

	case GeminiCLI:
		return "gemini", []string{"--prompt", payload}, nil

	case CodexCLI:
		return "codex", []string{"--prompt", payload}, nil

	case CursorAgent:
		args = []string{"--print", "--output-format", "text"}
		if model, ok := stringParam(params, "model"); ok {
			args = append(args, "--model", model)
		}
		args = append(args, mcpFlags(params)...)
		if browser, ok := boolParam(params, "browser"); ok && browser {
			args = append(args, "--browser")
		}
		args = append(args, payload)
		return "cursor-agent", args, nil

	case ContinueCLI:
		args = []string{"--print", "--format", "json"}
		if model, ok := stringParam(params, "model"); ok {
			args = append(args, "--model", model)
		}
		args = append(args, listFlags(params, "mcp", "--mcp")...)
		args = append(args, listFlags(params, "rule", "--rule")...)
		if cfg, ok := stringParam(params, "config"); ok {
			args = append(args, "--config", cfg)
		}
		if v, ok := boolParam(params, "auto"); ok && v {
			args = append(args, "--auto")
		}
		if v, ok := boolParam(params, "readonly"); ok && v {
			args = append(args, "--readonly")
		}
		if v, ok := boolParam(params, "silent"); ok && v {
			args = append(args, "--silent")
		}
		args = append(args, payload)
		return "cn", args, nil

	default:
		return "", nil, fmt.Errorf("unrecognized executor %q", id)
	}
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolParam(params map[string]any, key string) (bool, bool) {
	v, ok := params[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func listFlags(params map[string]any, key, flag string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, flag, s)
		}
	}
	return out
}

// mcpFlags builds cursor_agent's MCP-server flags from an
// executor_params["mcp_servers"] list, one "--mcp" per entry.
func mcpFlags(params map[string]any) []string {
	return listFlags(params, "mcp_servers", "--mcp")
}
