// Package rag drives the retrieval-augmented pipeline: index a document once,
// then answer questions from only the passages relevant to each one.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/cache"
	"docqa/internal/embedding"
	"docqa/internal/index"
	"docqa/internal/llmservice"
	"docqa/internal/models"
)

// Indexer is the pluggable caching strategy for document indexes: a disk
// cache, a Postgres-backed store, or a no-cache passthrough all satisfy it.
type Indexer interface {
	LoadOrBuild(ctx context.Context, identity, text string, metadata map[string]string, force bool) (*index.DocumentIndex, bool, error)
	Load(ctx context.Context, identity string) (*index.DocumentIndex, error)
	Remove(ctx context.Context, identity string) error
}

// RAG is the pipeline's surface consumed by transports. Built indexes are
// immutable, so the registry only needs locking around map access.
type RAG struct {
	indexer  Indexer
	embedder embedding.Embedder
	llm      llmservice.Service
	topK     int

	mu      sync.RWMutex
	indexes map[string]*index.DocumentIndex
}

func New(indexer Indexer, embedder embedding.Embedder, llm llmservice.Service, defaultTopK int) *RAG {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &RAG{
		indexer:  indexer,
		embedder: embedder,
		llm:      llm,
		topK:     defaultTopK,
		indexes:  make(map[string]*index.DocumentIndex),
	}
}

// Index chunks and embeds text under the given identity, reusing a cached
// index unless force is set.
func (r *RAG) Index(ctx context.Context, identity, text string, metadata map[string]string, force bool) (*models.IndexSummary, error) {
	start := time.Now()
	idx, fresh, err := r.indexer.LoadOrBuild(ctx, identity, text, metadata, force)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.indexes[identity] = idx
	r.mu.Unlock()

	return &models.IndexSummary{
		Identity:      identity,
		FreshlyBuilt:  fresh,
		Stats:         idx.Stats(),
		ElapsedMillis: time.Since(start).Milliseconds(),
	}, nil
}

// Remove evicts a document from the registry and deletes its persisted index.
// Unknown identities return cache.ErrNotFound.
func (r *RAG) Remove(ctx context.Context, identity string) error {
	r.mu.Lock()
	_, registered := r.indexes[identity]
	delete(r.indexes, identity)
	r.mu.Unlock()

	err := r.indexer.Remove(ctx, identity)
	if err != nil && registered && errors.Is(err, cache.ErrNotFound) {
		// Registered but never persisted; the eviction was the whole job.
		return nil
	}
	if err == nil {
		log.Info().Str("identity", identity).Msg("document removed")
	}
	return err
}

// Identities lists the documents currently held in the registry.
func (r *RAG) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.indexes))
	for id := range r.indexes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stats reports index statistics for one document.
func (r *RAG) Stats(ctx context.Context, identity string) (*models.IndexStats, error) {
	idx, err := r.getIndex(ctx, identity)
	if err != nil {
		return nil, err
	}
	s := idx.Stats()
	return &s, nil
}

// AnswerOne retrieves context for one question and runs the two-stage
// generation. Extraction failures and unindexed documents propagate.
func (r *RAG) AnswerOne(ctx context.Context, identity, question string, topK int) (*models.AnswerRecord, error) {
	idx, err := r.getIndex(ctx, identity)
	if err != nil {
		return nil, err
	}
	return r.answerWithIndex(ctx, idx, question, topK)
}

// AnswerMany applies the single-question pipeline to every question in input
// order. Per-question failures become flagged records; the batch never
// aborts early and always yields one record per question.
func (r *RAG) AnswerMany(ctx context.Context, identity string, questions []string, topK int) ([]models.AnswerRecord, *models.BatchStats, error) {
	idx, err := r.getIndex(ctx, identity)
	if err != nil {
		return nil, nil, err
	}

	records := make([]models.AnswerRecord, 0, len(questions))
	totalContext := 0
	for i, q := range questions {
		log.Info().Int("question", i+1).Int("total", len(questions)).Msg("processing question")
		rec, err := r.answerWithIndex(ctx, idx, q, topK)
		if err != nil {
			log.Error().Err(err).Int("question", i+1).Msg("question failed")
			records = append(records, models.AnswerRecord{
				Question:     q,
				Error:        true,
				ErrorMessage: err.Error(),
			})
			continue
		}
		totalContext += rec.ContextChars
		records = append(records, *rec)
	}

	stats := &models.BatchStats{
		TotalQuestions:    len(questions),
		TotalContextChars: totalContext,
		Index:             idx.Stats(),
	}
	if len(questions) > 0 {
		stats.AvgContextChars = totalContext / len(questions)
	}
	return records, stats, nil
}

func (r *RAG) answerWithIndex(ctx context.Context, idx *index.DocumentIndex, question string, topK int) (*models.AnswerRecord, error) {
	if topK <= 0 {
		topK = r.topK
	}
	results, err := idx.Retrieve(ctx, question, topK, r.embedder)
	if err != nil {
		return nil, err
	}
	contextStr := BuildContext(results)
	log.Debug().Int("chunks", len(results)).Int("context_chars", len(contextStr)).Msg("assembled context")

	rec, err := r.answer(ctx, contextStr, question)
	if err != nil {
		return nil, err
	}
	rec.ContextChars = len(contextStr)
	rec.ChunksRetrieved = len(results)
	return rec, nil
}

// answer runs the two-stage generation: extract strictly from context, then
// reformat the raw answer. A summarization failure degrades gracefully: the
// user still gets the raw answer, flagged as unsummarized.
func (r *RAG) answer(ctx context.Context, contextStr, question string) (*models.AnswerRecord, error) {
	extraction, err := r.llm.Complete(ctx,
		models.ExtractionSystemPrompt,
		fmt.Sprintf(models.ExtractionUserTemplate, contextStr, question),
	)
	if err != nil {
		return nil, &GenerationError{Stage: "extraction", Err: err}
	}

	rec := &models.AnswerRecord{
		Question:  question,
		RawAnswer: extraction.Text,
		Model:     r.llm.Model(),
	}
	rec.Usage.Extraction = extraction.Usage

	summary, err := r.llm.Complete(ctx,
		models.SummarizationSystemPrompt,
		fmt.Sprintf(models.SummarizationUserTemplate, question, extraction.Text),
	)
	if err != nil {
		log.Warn().Err(err).Msg("summarization failed, returning raw answer")
		rec.SummarizedAnswer = extraction.Text
		rec.SummarizationError = err.Error()
		return rec, nil
	}

	rec.SummarizedAnswer = summary.Text
	rec.Usage.Summarization = summary.Usage
	return rec, nil
}

// getIndex serves from the registry, falling back to the indexer's persisted
// entry so a restart does not lose indexed documents.
func (r *RAG) getIndex(ctx context.Context, identity string) (*index.DocumentIndex, error) {
	r.mu.RLock()
	idx, ok := r.indexes[identity]
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	idx, err := r.indexer.Load(ctx, identity)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("document %q: %w", identity, index.ErrEmptyIndex)
		}
		return nil, err
	}

	r.mu.Lock()
	r.indexes[identity] = idx
	r.mu.Unlock()
	return idx, nil
}
