package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"docqa/internal/chunker"
	"docqa/internal/db"
	"docqa/internal/embedding"
	"docqa/internal/index"
	"docqa/internal/models"
	"docqa/internal/vectordb"
)

// PostgresIndexer keeps document indexes as pgvector rows; the database is
// both the vector index and the cache, so a load never re-embeds anything.
type PostgresIndexer struct {
	db       *bun.DB
	splitter *chunker.Splitter
	embedder embedding.Embedder
}

func NewPostgresIndexer(bunDB *bun.DB, splitter *chunker.Splitter, embedder embedding.Embedder) *PostgresIndexer {
	return &PostgresIndexer{db: bunDB, splitter: splitter, embedder: embedder}
}

func (p *PostgresIndexer) LoadOrBuild(ctx context.Context, identity, text string, metadata map[string]string, force bool) (*index.DocumentIndex, bool, error) {
	if !force {
		n, err := db.CountChunks(ctx, p.db, identity)
		if err != nil {
			return nil, false, err
		}
		if n > 0 {
			idx, err := p.load(ctx, identity)
			if err != nil {
				return nil, false, err
			}
			return idx, false, nil
		}
	}

	// Replace any previous rows in one transaction; a failed build rolls
	// back and the last good index stays queryable.
	chunks := p.splitter.Split(text, metadata)
	var idx *index.DocumentIndex
	err := p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := db.DeleteChunks(ctx, tx, identity); err != nil {
			return err
		}
		built, err := index.Build(ctx, chunks, p.embedder, vectordb.NewPostgresIndex(tx, identity),
			p.splitter.ChunkSize(), p.splitter.ChunkOverlap())
		if err != nil {
			return err
		}
		idx = built
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	// Rebind the vector index to the live connection; the transaction is gone.
	idx = index.FromParts(idx.Chunks(), idx.Embeddings(), vectordb.NewPostgresIndex(p.db, identity),
		p.splitter.ChunkSize(), p.splitter.ChunkOverlap())
	log.Info().Str("identity", identity).Int("chunks", len(chunks)).Msg("indexed document into postgres")
	return idx, true, nil
}

// Remove deletes a document's rows, or returns ErrNotFound when none exist.
func (p *PostgresIndexer) Remove(ctx context.Context, identity string) error {
	n, err := db.CountChunks(ctx, p.db, identity)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	if err := db.DeleteChunks(ctx, p.db, identity); err != nil {
		return err
	}
	log.Info().Str("identity", identity).Msg("removed document from postgres")
	return nil
}

func (p *PostgresIndexer) Load(ctx context.Context, identity string) (*index.DocumentIndex, error) {
	n, err := db.CountChunks(ctx, p.db, identity)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	return p.load(ctx, identity)
}

func (p *PostgresIndexer) load(ctx context.Context, identity string) (*index.DocumentIndex, error) {
	rows, err := db.LoadChunks(ctx, p.db, identity)
	if err != nil {
		return nil, &ReadError{Identity: identity, Err: err}
	}
	chunks := make([]models.Chunk, len(rows))
	embeddings := make([][]float32, len(rows))
	for i, r := range rows {
		chunks[i] = models.Chunk{Content: r.Content, Position: r.Position, Metadata: r.Metadata}
		embeddings[i] = r.Embedding
	}
	vec := vectordb.NewPostgresIndex(p.db, identity)
	return index.FromParts(chunks, embeddings, vec, p.splitter.ChunkSize(), p.splitter.ChunkOverlap()), nil
}
