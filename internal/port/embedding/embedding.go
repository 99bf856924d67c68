// Package embedding defines the text embedding port (interface).
package embedding

import "context"

// Embedder turns text into a fixed-dimension float vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
