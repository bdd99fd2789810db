package models

import "encoding/json"

// ToolDef describes a tool surfaced to the provider in a request. Schema
// is the tool's JSON Schema for its parameters.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ToolChoice constrains which tool (if any) the model must call.
type ToolChoice struct {
	Mode string `json:"mode"` // "auto" | "none" | "required" | "tool"
	Name string `json:"name,omitempty"`
}
