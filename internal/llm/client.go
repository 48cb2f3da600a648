// Package llm is the boundary to the generative model service. The service
// is treated as an opaque completion endpoint: it takes a prompt plus the
// conversation so far and returns text that may or may not contain a usable
// command. Nothing in this package interprets that text.
package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the replayed conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one model invocation.
type Request struct {
	Model string
	// System carries the standing instructions; Prompt is the current user
	// turn. History, when present, is replayed verbatim between the two.
	System  string
	Prompt  string
	History []Turn
	// ImageB64 optionally attaches a page screenshot.
	ImageB64 string
}

type Response struct {
	Text  string
	Model string
}

// StreamFunc receives incremental text fragments during a streaming call.
// Fragments are advisory, for display only: command extraction always runs
// on the complete reply returned at the end.
type StreamFunc func(chunk string)

// Client is the model-service contract. Implementations must return typed
// errors distinguishing an unreachable service from an error status, and
// must never panic past this boundary.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	GenerateStream(ctx context.Context, req Request, onChunk StreamFunc) (*Response, error)
	ListModels(ctx context.Context) ([]string, error)
}
