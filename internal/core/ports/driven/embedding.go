package driven

import "context"

// EmbeddingService generates vector embeddings from text.
// Implementations: OpenAI-compatible, Ollama, Gemini, and the retry decorator.
type EmbeddingService interface {
	// EmbedBatch generates one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size, or 0 if not known yet.
	Dimensions() int

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Ping validates the embedding service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
