package vectordb

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"docqa/internal/db"
)

// PostgresIndex answers nearest-neighbour queries in SQL against pgvector
// rows scoped to one document. Similarity is the negated L2 distance so that
// higher still means closer. Writes may go through a transaction, so the
// handle is bun.IDB.
type PostgresIndex struct {
	db         bun.IDB
	documentID string
}

func NewPostgresIndex(bunDB bun.IDB, documentID string) *PostgresIndex {
	return &PostgresIndex{db: bunDB, documentID: documentID}
}

func (p *PostgresIndex) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]db.ChunkRow, len(entries))
	for i, e := range entries {
		rows[i] = db.ChunkRow{
			DocumentID: p.documentID,
			Position:   e.Position,
			Content:    e.Content,
			Metadata:   e.Metadata,
			Embedding:  e.Embedding,
		}
	}
	if err := db.StoreChunks(ctx, p.db, rows); err != nil {
		return fmt.Errorf("storing chunk vectors: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := db.SearchChunks(ctx, p.db, p.documentID, query, k)
	if err != nil {
		return nil, fmt.Errorf("searching chunk vectors: %w", err)
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{Position: r.Position, Similarity: float32(-r.Distance)})
	}
	return hits, nil
}
