// Package mcp exposes FarmSync to MCP (Model Context Protocol) clients.
//
// Two entry points are provided:
//
//  1. NewServer (server.go) runs a complete MCP server over stdio using
//     mcp-go.
//
//  2. RegisterTools (tools.go) registers the same tools with a caller-supplied
//     Registry, for agent frameworks that already host MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/farmsync/farmsync"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// RegisterTools registers the FarmSync tools with registry. Handlers return
// the tool's text output, or an error when the tool reports one.
func RegisterTools(registry Registry, client *farmsync.Client) {
	s := &Server{client: client}
	schemas := map[string]Schema{
		"farmsync_status": {},
		"farmsync_stats":  {},
		"farmsync_sync": {
			"direction": {
				Type:        "string",
				Description: "Sync direction",
				Default:     "both",
				Enum:        []string{"push", "pull", "both"},
			},
		},
		"farmsync_animals": {
			"status": {Type: "string", Description: "Only animals with this herd status"},
		},
		"farmsync_animal": {
			"animal": {Type: "string", Description: "The animal's id_interno", Required: true},
		},
		"farmsync_add_animal": {
			"id_interno": {Type: "string", Description: "The farm's own tag number", Required: true},
			"name":       {Type: "string", Description: "Animal name"},
			"sex":        {Type: "string", Description: "Hembra or Macho", Default: farmsync.SexFemale, Enum: []string{farmsync.SexFemale, farmsync.SexMale}},
			"breed":      {Type: "string", Description: "Breed"},
			"birth_date": {Type: "string", Description: "Birth date"},
			"status":     {Type: "string", Description: "Herd status", Default: farmsync.StatusActive},
		},
		"farmsync_record_milking": {
			"animal":       {Type: "string", Description: "The animal's id_interno", Required: true},
			"date":         {Type: "string", Description: "Milking date", Required: true},
			"liters_am":    {Type: "number", Description: "Morning liters"},
			"liters_pm":    {Type: "number", Description: "Evening liters"},
			"total_liters": {Type: "number", Description: "Total liters"},
		},
	}

	for _, info := range s.ListTools() {
		registry.Register(Tool{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  schemas[info.Name],
			Handler:     makeHandler(s, info.Name),
		})
	}
}

func makeHandler(s *Server, name string) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		args := map[string]any{}
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &args); err != nil {
				return nil, fmt.Errorf("parse params: %w", err)
			}
		}
		result, err := s.CallTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		if result.IsError {
			return nil, errors.New(result.Content)
		}
		return result.Content, nil
	}
}
