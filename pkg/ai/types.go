package ai

import "context"

// Chat message roles understood by the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of the transcript sent to the provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest carries the tutor parameters for a single provider call. The
// APIKey travels with the request because each tutor configuration owns its
// own credential.
type ChatRequest struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Messages    []ChatMessage
}

// ChatResult is the full provider reply for a non-streaming call.
type ChatResult struct {
	Content    string
	TokensUsed int
}

// StreamChunk is one increment of a streaming reply. Err is set on the final
// chunk when the provider failed mid-stream; Done marks clean completion.
type StreamChunk struct {
	Token string
	Done  bool
	Err   error
}

// Client describes a chat-completion provider supporting both single-shot and
// streaming calls.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResult, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}
