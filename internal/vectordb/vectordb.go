// Package vectordb abstracts nearest-neighbour search over chunk embeddings.
package vectordb

import "context"

// Entry is one chunk vector to store. Position is the chunk's order within
// its document and doubles as the stored vector's identifier.
type Entry struct {
	Position  int
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Hit is a nearest-neighbour match. Similarity is higher-is-better; the
// absolute scale depends on the backend (cosine similarity for chromem,
// negated L2 distance for pgvector) but ordering is consistent.
type Hit struct {
	Position   int
	Similarity float32
}

// Index stores chunk vectors and answers nearest-neighbour queries.
// Implementations must tolerate k larger than the number of stored vectors.
type Index interface {
	Add(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
}
