package chat

import "context"

// StreamHandler is a generic callback for streaming chunks
type StreamHandler[T any] func(chunk T) error

// ThreadHandler receives the conversation thread id as soon as the upstream
// advertises it, before any chunk is delivered.
type ThreadHandler func(threadID string)

// ClassifierPort abstracts one upstream chat turn. Implementations may stream
// tool-call fragments incrementally or synthesize chunks from a single-shot
// completion; the orchestrator treats both the same way.
type ClassifierPort interface {
	StreamTurn(ctx context.Context, req *Request, onThread ThreadHandler, onChunk StreamHandler[StreamChunk]) error
}
