// Package index owns one document's chunk set and vector index and exposes
// indexing and similarity retrieval over them.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/vectordb"
)

// DocumentIndex is read-only after construction and safe for concurrent
// readers. Re-indexing a document replaces the index, it never mutates one.
type DocumentIndex struct {
	chunks       []models.Chunk
	embeddings   [][]float32
	vec          vectordb.Index
	chunkSize    int
	chunkOverlap int
}

// Build embeds every chunk and stores the vectors. Any embedding failure
// fails the whole document with an IndexingError.
func Build(ctx context.Context, chunks []models.Chunk, embedder embedding.Embedder, vec vectordb.Index, chunkSize, chunkOverlap int) (*DocumentIndex, error) {
	var embeddings [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		var err error
		embeddings, err = embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, &IndexingError{Err: fmt.Errorf("embedding %d chunks: %w", len(chunks), err)}
		}
		if len(embeddings) != len(chunks) {
			return nil, &IndexingError{Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))}
		}
		if err := vec.Add(ctx, entries(chunks, embeddings)); err != nil {
			return nil, &IndexingError{Err: err}
		}
	}
	log.Debug().Int("chunks", len(chunks)).Msg("document index built")
	return &DocumentIndex{
		chunks:       chunks,
		embeddings:   embeddings,
		vec:          vec,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// FromParts wraps already-embedded chunks around a vector index that is
// assumed to contain them. Used when loading a cached or persistent index.
func FromParts(chunks []models.Chunk, embeddings [][]float32, vec vectordb.Index, chunkSize, chunkOverlap int) *DocumentIndex {
	return &DocumentIndex{
		chunks:       chunks,
		embeddings:   embeddings,
		vec:          vec,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Entries pairs chunks with their embeddings for vector storage.
func Entries(chunks []models.Chunk, embeddings [][]float32) []vectordb.Entry {
	return entries(chunks, embeddings)
}

func entries(chunks []models.Chunk, embeddings [][]float32) []vectordb.Entry {
	out := make([]vectordb.Entry, len(chunks))
	for i, c := range chunks {
		out[i] = vectordb.Entry{
			Position:  c.Position,
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: embeddings[i],
		}
	}
	return out
}

// Retrieve embeds the query and returns the topK most similar chunks,
// ordered by descending similarity with ties broken by chunk position.
// topK is clamped to the number of chunks.
func (d *DocumentIndex) Retrieve(ctx context.Context, query string, topK int, embedder embedding.Embedder) ([]models.RetrievalResult, error) {
	if len(d.chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be > 0, got %d", topK)
	}
	if topK > len(d.chunks) {
		topK = len(d.chunks)
	}

	queryEmbedding, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := d.vec.Search(ctx, queryEmbedding, topK)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Position < hits[j].Position
	})

	results := make([]models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(d.chunks) {
			return nil, fmt.Errorf("vector index returned unknown chunk position %d", h.Position)
		}
		results = append(results, models.RetrievalResult{
			Chunk:      d.chunks[h.Position],
			Similarity: h.Similarity,
		})
	}
	return results, nil
}

func (d *DocumentIndex) Chunks() []models.Chunk  { return d.chunks }
func (d *DocumentIndex) Embeddings() [][]float32 { return d.embeddings }
func (d *DocumentIndex) ChunkSize() int          { return d.chunkSize }
func (d *DocumentIndex) ChunkOverlap() int       { return d.chunkOverlap }

// Stats summarizes the indexed document.
func (d *DocumentIndex) Stats() models.IndexStats {
	total := 0
	for _, c := range d.chunks {
		total += len(c.Content)
	}
	avg := 0
	if len(d.chunks) > 0 {
		avg = total / len(d.chunks)
	}
	return models.IndexStats{
		NumChunks:    len(d.chunks),
		TotalChars:   total,
		AvgChunkSize: avg,
		ChunkSize:    d.chunkSize,
		ChunkOverlap: d.chunkOverlap,
	}
}
