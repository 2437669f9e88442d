package model

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/Laisky/errors/v2"
)

// Tool represents a tool definition used in AI model interactions.
// It contains metadata about the tool and its associated function or MCP server configuration.
// This struct supports both function-based tools and Remote MCP server tools.
type Tool struct {
	Id       string    `json:"id,omitempty"`       // Unique identifier for the tool
	Type     string    `json:"type,omitempty"`     // Tool type (e.g., "function", "mcp"), may be empty when splicing claude tools stream messages
	Function *Function `json:"function,omitempty"` // Function definition (for type="function")
	Index    *int      `json:"index,omitempty"`    // Index identifies which function call the delta is for in streaming responses

	// MCP-specific fields (for type="mcp")
	ServerLabel     string            `json:"server_label,omitempty"`     // Label for the MCP server
	ServerUrl       string            `json:"server_url,omitempty"`       // URL of the remote MCP server
	RequireApproval any               `json:"require_approval,omitempty"` // Approval requirement: "never", or object with tool-specific settings
	AllowedTools    []string          `json:"allowed_tools,omitempty"`    // List of allowed tool names from the MCP server
	Headers         map[string]string `json:"headers,omitempty"`          // Additional headers for MCP server requests (e.g., Authorization)
}

// Function represents a function definition within a tool.
// It contains the function's metadata including its description, name, parameters for requests,
// and arguments for responses. Used for both tool calling requests and responses.
type Function struct {
	Description string   `json:"description,omitempty"` // Human-readable description of what the function does
	Name        string   `json:"name,omitempty"`        // Function name, may be empty when splicing claude tools stream messages
	Parameters  any      `json:"parameters,omitempty"`  // Function parameters schema for requests (typically JSON Schema)
	Arguments   any      `json:"arguments,omitempty"`   // Function arguments data for responses (actual values passed to function)
	Required    []string `json:"required,omitempty"`    // Required parameter names for function validation
	Strict      *bool    `json:"strict,omitempty"`      // Whether to enforce strict parameter validation
}

// toolWire mirrors Tool's JSON shape and also accepts a flattened function
// tool, where name/description/parameters/strict sit at the top level
// instead of nested under "function" (a shape some clients still send).
type toolWire struct {
	Id              string            `json:"id,omitempty"`
	Type            string            `json:"type,omitempty"`
	Function        *Function         `json:"function,omitempty"`
	Index           *int              `json:"index,omitempty"`
	ServerLabel     string            `json:"server_label,omitempty"`
	ServerUrl       string            `json:"server_url,omitempty"`
	RequireApproval any               `json:"require_approval,omitempty"`
	AllowedTools    []string          `json:"allowed_tools,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`

	// Flattened-function fields, only read when Function is absent.
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Strict      *bool  `json:"strict,omitempty"`
}

// UnmarshalJSON accepts both the nested {"function": {...}} shape and a
// flattened {"type":"function","name":...} shape for function tools.
func (t *Tool) UnmarshalJSON(data []byte) error {
	var w toolWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t.Id = w.Id
	t.Type = w.Type
	t.Function = w.Function
	t.Index = w.Index
	t.ServerLabel = w.ServerLabel
	t.ServerUrl = w.ServerUrl
	t.RequireApproval = w.RequireApproval
	t.AllowedTools = w.AllowedTools
	t.Headers = w.Headers

	if t.Function == nil && (w.Name != "" || w.Description != "" || w.Parameters != nil || w.Strict != nil) {
		t.Function = &Function{
			Name:        w.Name,
			Description: w.Description,
			Parameters:  w.Parameters,
			Strict:      w.Strict,
		}
	}

	return nil
}

// MarshalJSON omits the function field entirely for MCP tools, which never
// carry one, and always emits the canonical nested shape otherwise.
func (t Tool) MarshalJSON() ([]byte, error) {
	w := toolWire{
		Id:              t.Id,
		Type:            t.Type,
		Index:           t.Index,
		ServerLabel:     t.ServerLabel,
		ServerUrl:       t.ServerUrl,
		RequireApproval: t.RequireApproval,
		AllowedTools:    t.AllowedTools,
		Headers:         t.Headers,
	}
	if t.Type != "mcp" {
		w.Function = t.Function
	}
	return json.Marshal(w)
}

// Validate checks a tool's required fields based on its Type, defaulting to
// function-tool validation for unrecognized types.
func (t Tool) Validate() error {
	if t.Type == "mcp" {
		return t.ValidateMCP()
	}
	return t.ValidateFunction()
}

// ValidateFunction checks that a function tool carries a usable function
// definition. A nil Function on an explicitly-typed "function" tool is an
// error; other types are only checked when a Function is actually present.
func (t Tool) ValidateFunction() error {
	if t.Function == nil {
		if t.Type == "function" {
			return errors.New("function tool requires function definition")
		}
		return nil
	}
	if strings.TrimSpace(t.Function.Name) == "" {
		return errors.New("function name is required")
	}
	return nil
}

// ValidateMCP checks that an MCP tool carries a server label and a
// http(s) server URL.
func (t Tool) ValidateMCP() error {
	if strings.TrimSpace(t.ServerLabel) == "" {
		return errors.New("MCP tool requires server_label")
	}
	if strings.TrimSpace(t.ServerUrl) == "" {
		return errors.New("MCP tool requires server_url")
	}
	u, err := url.Parse(t.ServerUrl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("server_url must use http or https scheme")
	}
	return nil
}
