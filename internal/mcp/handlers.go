package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/keeper"
	"github.com/hpungsan/keep/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	keeper *keeper.Keeper
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(k *keeper.Keeper) *Handlers {
	return &Handlers{keeper: k}
}

// Request types for each tool

// PutRequest represents the arguments for put.
type PutRequest struct {
	Content    string            `json:"content"`
	ID         string            `json:"id,omitempty"`
	Collection string            `json:"collection,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Summary    string            `json:"summary,omitempty"`
}

// GetRequest represents the arguments for get.
type GetRequest struct {
	IDs        []string `json:"ids"`
	Collection string   `json:"collection,omitempty"`
	Offset     int      `json:"offset,omitempty"`
	Expand     bool     `json:"expand,omitempty"`
}

// FindRequest represents the arguments for find.
type FindRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Since      string `json:"since,omitempty"`
}

// QueryTagRequest represents the arguments for query_tag.
type QueryTagRequest struct {
	Tags       map[string]string `json:"tags"`
	Collection string            `json:"collection,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

// ListRequest represents the arguments for list.
type ListRequest struct {
	Collection string `json:"collection,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	OrderBy    string `json:"order_by,omitempty"`
	Since      string `json:"since,omitempty"`
}

// DeleteRequest represents the arguments for delete.
type DeleteRequest struct {
	ID           string `json:"id"`
	Collection   string `json:"collection,omitempty"`
	KeepVersions bool   `json:"keep_versions,omitempty"`
}

// Handler implementations

// HandlePut handles the put tool call.
func (h *Handlers) HandlePut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PutRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}

	// Empty content with an id and tags retags the existing document
	// without touching its content or summary.
	if input.Content == "" && input.ID != "" && len(input.Tags) > 0 {
		result, err := h.keeper.UpdateTags(ctx, input.ID, input.Collection, item.Tags(input.Tags))
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	}
	if input.Content == "" {
		return errorResult(errors.NewInvalidInput("content is required unless id and tags are given for a tags-only update")), nil
	}

	result, err := h.keeper.Remember(ctx, keeper.RememberInput{
		Content:    input.Content,
		ID:         input.ID,
		Collection: input.Collection,
		Tags:       item.Tags(input.Tags),
		Summary:    input.Summary,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	if len(input.IDs) == 0 {
		return errorResult(errors.NewInvalidInput("ids is required")), nil
	}

	result, err := h.keeper.Get(ctx, keeper.GetInput{
		IDs:        input.IDs,
		Collection: input.Collection,
		Offset:     input.Offset,
		Expand:     input.Expand,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFind handles the find tool call.
func (h *Handlers) HandleFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FindRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	if input.Query == "" {
		return errorResult(errors.NewInvalidInput("query is required")), nil
	}

	items, err := h.keeper.Find(ctx, keeper.FindInput{
		Query:      input.Query,
		Collection: input.Collection,
		Limit:      input.Limit,
		Since:      input.Since,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"items": items})
}

// HandleQueryTag handles the query_tag tool call.
func (h *Handlers) HandleQueryTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QueryTagRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}

	items, err := h.keeper.QueryTag(input.Collection, input.Tags, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"items": items})
}

// HandleList handles the list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}

	limit := input.Limit
	if limit == 0 {
		limit = 20
	}
	items, err := h.keeper.List(input.Collection, limit, store.OrderBy(input.OrderBy), input.Since)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"items": items})
}

// HandleDelete handles the delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidInput("id is required")), nil
	}

	if err := h.keeper.Delete(ctx, input.ID, input.Collection, !input.KeepVersions); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"deleted": input.ID})
}

// HandleCollections handles the collections tool call.
func (h *Handlers) HandleCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := h.keeper.Collections()
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"collections": infos})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if keepErr, ok := err.(*errors.KeepError); ok {
		errorObj := map[string]any{
			"code":    keepErr.Code,
			"message": keepErr.Message,
		}
		if keepErr.Code != errors.ErrInternal && keepErr.Details != nil {
			errorObj["details"] = keepErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
