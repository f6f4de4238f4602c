// Package ingest turns a live or recorded MCP (Model Context Protocol)
// JSON-RPC stream into the trace.Event sequence internal/eval and
// internal/monitor analyze, pairing each tools/call request with the
// response that answers it.
package ingest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tracesec/tracewatch/api"
	"github.com/tracesec/tracewatch/internal/jsonrpc"
	"github.com/tracesec/tracewatch/internal/trace"
)

// pendingCall is what a tools/call request leaves behind for the matching
// response to complete.
type pendingCall struct {
	toolCallID string
	toolName   string
	arguments  map[string]json.RawMessage
}

// MCPIngester consumes a stream of JSON-RPC messages one at a time and
// emits the trace.Events they correspond to. tools/call requests produce
// a Message wrapping a single ToolCall event immediately; the matching
// response produces a standalone ToolOutput event once it arrives, which
// may be many messages later or, for a long-running tool, never.
type MCPIngester struct {
	mu      sync.Mutex
	pending map[string]pendingCall // keyed by JSON-RPC request id
}

// NewMCPIngester creates an ingester with no calls in flight.
func NewMCPIngester() *MCPIngester {
	return &MCPIngester{pending: make(map[string]pendingCall)}
}

// Feed parses one JSON-RPC message and returns the trace.Events it
// produces, if any. Most messages (notifications, responses to methods
// other than tools/call, non-tools/call requests) produce nothing.
func (i *MCPIngester) Feed(data []byte) ([]*trace.Event, error) {
	msg, err := jsonrpc.Parse(data)
	if err != nil {
		return nil, err
	}
	return i.FeedMessage(msg)
}

// FeedMessage is Feed for a message already decoded by a caller that
// owns its own transport loop.
func (i *MCPIngester) FeedMessage(msg *api.JSONRPCMessage) ([]*trace.Event, error) {
	switch {
	case msg.IsRequest() && msg.Method == "tools/call":
		return i.feedToolCall(msg)
	case msg.IsResponse():
		return i.feedResponse(msg)
	default:
		return nil, nil
	}
}

func (i *MCPIngester) feedToolCall(msg *api.JSONRPCMessage) ([]*trace.Event, error) {
	params, err := jsonrpc.ExtractToolCall(msg)
	if err != nil {
		return nil, err
	}

	var rawArgs map[string]json.RawMessage
	if params.Arguments != nil {
		if err := json.Unmarshal(params.Arguments, &rawArgs); err != nil {
			return nil, fmt.Errorf("decoding tool arguments: %w", err)
		}
	}

	callID := uuid.NewString()

	i.mu.Lock()
	i.pending[string(msg.ID)] = pendingCall{
		toolCallID: callID,
		toolName:   params.Name,
		arguments:  rawArgs,
	}
	i.mu.Unlock()

	args := make(map[string]trace.Value, len(rawArgs))
	for k, raw := range rawArgs {
		var v trace.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding argument %q: %w", k, err)
		}
		args[k] = v
	}

	call := &trace.Event{
		ID:         trace.EventID(callID),
		Kind:       trace.KindToolCall,
		ToolCallID: callID,
		ToolName:   params.Name,
		Arguments:  args,
	}
	wrapper := &trace.Event{
		Kind:      trace.KindMessage,
		Role:      "assistant",
		ToolCalls: []*trace.Event{call},
	}
	return []*trace.Event{wrapper}, nil
}

func (i *MCPIngester) feedResponse(msg *api.JSONRPCMessage) ([]*trace.Event, error) {
	i.mu.Lock()
	call, ok := i.pending[string(msg.ID)]
	if ok {
		delete(i.pending, string(msg.ID))
	}
	i.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var content trace.Value
	switch {
	case msg.Error != nil:
		content = trace.NewValue(msg.Error.Message)
	case msg.Result != nil:
		if err := json.Unmarshal(msg.Result, &content); err != nil {
			return nil, fmt.Errorf("decoding tool result: %w", err)
		}
	default:
		content = trace.Null
	}

	out := &trace.Event{
		Kind:             trace.KindToolOutput,
		Role:             "tool",
		OutputToolCallID: call.toolCallID,
		OutputContent:    content,
	}
	return []*trace.Event{out}, nil
}
