// Package cache persists document indexes by identity so unchanged documents
// are never re-embedded.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/chunker"
	"docqa/internal/embedding"
	"docqa/internal/index"
	"docqa/internal/models"
	"docqa/internal/vectordb"
)

const entryVersion = 1

// entry is the on-disk serialization of a document index.
type entry struct {
	Version       int               `json:"version"`
	Identity      string            `json:"identity"`
	ContentSHA256 string            `json:"content_sha256"`
	ChunkSize     int               `json:"chunk_size"`
	ChunkOverlap  int               `json:"chunk_overlap"`
	CreatedAt     time.Time         `json:"created_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Chunks        []chunkRecord     `json:"chunks"`
}

type chunkRecord struct {
	Content   string            `json:"content"`
	Position  int               `json:"position"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding"`
}

// Cache builds in-memory chromem indexes and persists them through a Store.
// Concurrent builders for the same identity are unsupported: last writer wins.
type Cache struct {
	store    Store
	splitter *chunker.Splitter
	embedder embedding.Embedder
}

func New(store Store, splitter *chunker.Splitter, embedder embedding.Embedder) *Cache {
	return &Cache{store: store, splitter: splitter, embedder: embedder}
}

// LoadOrBuild returns the cached index for identity when one exists and force
// is false, performing no chunking or embedding work. Otherwise it chunks
// text, builds a fresh index, persists it, and reports freshlyBuilt=true.
func (c *Cache) LoadOrBuild(ctx context.Context, identity, text string, metadata map[string]string, force bool) (*index.DocumentIndex, bool, error) {
	if !force {
		ok, err := c.store.Exists(identity)
		if err != nil {
			return nil, false, err
		}
		if ok {
			idx, err := c.load(ctx, identity, text)
			if err != nil {
				return nil, false, err
			}
			log.Info().Str("identity", identity).Msg("loaded cached index")
			return idx, false, nil
		}
	}

	chunks := c.splitter.Split(text, metadata)
	vec, err := vectordb.NewChromemIndex(identity)
	if err != nil {
		return nil, false, err
	}
	idx, err := index.Build(ctx, chunks, c.embedder, vec, c.splitter.ChunkSize(), c.splitter.ChunkOverlap())
	if err != nil {
		return nil, false, err
	}
	if err := c.persist(identity, text, metadata, idx); err != nil {
		return nil, false, fmt.Errorf("persisting index for %q: %w", identity, err)
	}
	log.Info().Str("identity", identity).Int("chunks", len(chunks)).Msg("indexed document")
	return idx, true, nil
}

// Remove deletes the cached entry for identity, or returns ErrNotFound when
// there is none.
func (c *Cache) Remove(_ context.Context, identity string) error {
	ok, err := c.store.Exists(identity)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	if err := c.store.Delete(identity); err != nil {
		return err
	}
	log.Info().Str("identity", identity).Msg("removed cached index")
	return nil
}

// Load returns the cached index for identity, or ErrNotFound.
func (c *Cache) Load(ctx context.Context, identity string) (*index.DocumentIndex, error) {
	ok, err := c.store.Exists(identity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	return c.load(ctx, identity, "")
}

func (c *Cache) persist(identity, text string, metadata map[string]string, idx *index.DocumentIndex) error {
	chunks := idx.Chunks()
	embeddings := idx.Embeddings()
	records := make([]chunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = chunkRecord{
			Content:   ch.Content,
			Position:  ch.Position,
			Metadata:  ch.Metadata,
			Embedding: embeddings[i],
		}
	}
	blob, err := json.Marshal(entry{
		Version:       entryVersion,
		Identity:      identity,
		ContentSHA256: hashText(text),
		ChunkSize:     idx.ChunkSize(),
		ChunkOverlap:  idx.ChunkOverlap(),
		CreatedAt:     time.Now().UTC(),
		Metadata:      metadata,
		Chunks:        records,
	})
	if err != nil {
		return err
	}
	return c.store.Write(identity, blob)
}

func (c *Cache) load(ctx context.Context, identity, text string) (*index.DocumentIndex, error) {
	blob, err := c.store.Read(identity)
	if err != nil {
		return nil, &ReadError{Identity: identity, Err: err}
	}
	var e entry
	if err := json.Unmarshal(blob, &e); err != nil {
		return nil, &ReadError{Identity: identity, Err: err}
	}
	if e.Version != entryVersion {
		return nil, &ReadError{Identity: identity, Err: fmt.Errorf("unsupported entry version %d", e.Version)}
	}

	// Staleness is the caller's responsibility: a changed document behind an
	// unchanged identity is served as-is, but we can at least say so.
	if text != "" && e.ContentSHA256 != "" && e.ContentSHA256 != hashText(text) {
		log.Warn().Str("identity", identity).Msg("cached index was built from different source text; pass force_reindex to rebuild")
	}

	chunks := make([]models.Chunk, len(e.Chunks))
	embeddings := make([][]float32, len(e.Chunks))
	for i, r := range e.Chunks {
		if len(r.Embedding) == 0 {
			return nil, &ReadError{Identity: identity, Err: fmt.Errorf("chunk %d has no embedding", r.Position)}
		}
		chunks[i] = models.Chunk{Content: r.Content, Position: r.Position, Metadata: r.Metadata}
		embeddings[i] = r.Embedding
	}

	vec, err := vectordb.NewChromemIndex(identity)
	if err != nil {
		return nil, err
	}
	if err := vec.Add(ctx, index.Entries(chunks, embeddings)); err != nil {
		return nil, &ReadError{Identity: identity, Err: err}
	}
	return index.FromParts(chunks, embeddings, vec, e.ChunkSize, e.ChunkOverlap), nil
}

func hashText(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
