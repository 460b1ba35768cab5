// Package llmclient defines the chat-completion interface the pipeline
// consumes: completion with streaming, stop tokens, and temperature
// control.
package llmclient

import "context"

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// Options controls a completion call.
type Options struct {
	Temperature float64
	MaxTokens   int64
	StopTokens  []string
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	Text string
	Done bool // true on the terminal chunk; Text is empty when Done
}

// Client is the LLMClient consumed interface. Implementations must respect
// ctx cancellation within a bounded wall-clock budget.
type Client interface {
	// Complete sends messages and returns the full response text.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)

	// Stream sends messages and returns a lazy sequence of text chunks
	// terminated by a Chunk with Done=true. The returned channel is closed
	// after the terminal chunk or when ctx is cancelled.
	Stream(ctx context.Context, messages []Message, opts Options) (<-chan Chunk, error)
}
