package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/storage"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type ChunkMetadata struct {
	Airline     string `json:"airline"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// CacheEntry is the persisted embedding cache of one airline. The three
// slices are parallel.
type CacheEntry struct {
	Chunks     []string        `json:"chunks"`
	Embeddings [][]float64     `json:"embeddings"`
	Metadata   []ChunkMetadata `json:"metadata"`
}

func (e *CacheEntry) validate() error {
	if len(e.Chunks) != len(e.Embeddings) || len(e.Chunks) != len(e.Metadata) {
		return fmt.Errorf("embedding cache arrays differ in length: %d chunks, %d embeddings, %d metadata",
			len(e.Chunks), len(e.Embeddings), len(e.Metadata))
	}
	return nil
}

// Index is a per-airline semantic index over policy chunks, persisted as one
// JSON object per airline. Concurrent first-time builds for the same airline
// may both write; the last write wins.
type Index struct {
	store         storage.ObjectStore
	embedder      Embedder
	splitter      *Splitter
	logger        *slog.Logger
	entries       sync.Map
	retryAttempts uint
	retryDelay    time.Duration
}

type IndexOption func(*Index)

// WithRetry sets how often an embedding call is attempted and the initial
// backoff between attempts.
func WithRetry(attempts uint, delay time.Duration) IndexOption {
	return func(i *Index) {
		i.retryAttempts = attempts
		i.retryDelay = delay
	}
}

func NewIndex(store storage.ObjectStore, embedder Embedder, splitter *Splitter, logger *slog.Logger, opts ...IndexOption) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	index := &Index{
		store:         store,
		embedder:      embedder,
		splitter:      splitter,
		logger:        logger,
		retryAttempts: 3,
		retryDelay:    250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(index)
	}
	if index.retryAttempts == 0 {
		index.retryAttempts = 1
	}
	return index, nil
}

// Entry returns the cached embeddings of airline, building and persisting
// them from document on a miss.
func (i *Index) Entry(ctx context.Context, airline, document string) (*CacheEntry, error) {
	if cached, ok := i.entries.Load(airline); ok {
		observability.ObserveEmbeddingCache(true)
		return cached.(*CacheEntry), nil
	}

	key, err := storage.EmbeddingCacheKey(airline)
	if err != nil {
		return nil, err
	}
	entry, err := i.load(ctx, key)
	switch {
	case err == nil:
		observability.ObserveEmbeddingCache(true)
		i.entries.Store(airline, entry)
		return entry, nil
	case errors.Is(err, storage.ErrObjectNotFound):
	default:
		i.logger.WarnContext(ctx, "embedding_cache_unreadable",
			slog.String("airline", airline),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	observability.ObserveEmbeddingCache(false)
	entry, err = i.build(ctx, airline, document)
	if err != nil {
		return nil, err
	}
	if err := i.persist(ctx, key, entry); err != nil {
		return nil, err
	}
	i.entries.Store(airline, entry)
	return entry, nil
}

// Search returns up to k chunks of the airline's document ranked by cosine
// similarity to query.
func (i *Index) Search(ctx context.Context, airline, document, query string, k int) ([]string, error) {
	entry, err := i.Entry(ctx, airline, document)
	if err != nil {
		return nil, err
	}
	if len(entry.Chunks) == 0 || k <= 0 {
		return nil, nil
	}
	queryVector, err := i.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(entry.Chunks))
	for idx := range entry.Chunks {
		ranked[idx] = scored{index: idx, score: cosine(queryVector, entry.Embeddings[idx])}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, 0, k)
	for _, item := range ranked[:k] {
		out = append(out, entry.Chunks[item.index])
	}
	return out, nil
}

func (i *Index) load(ctx context.Context, key string) (*CacheEntry, error) {
	raw, err := storage.ReadAll(ctx, i.store, key)
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode embedding cache %q: %w", key, err)
	}
	if err := entry.validate(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (i *Index) build(ctx context.Context, airline, document string) (*CacheEntry, error) {
	chunks := i.splitter.Split(document)
	entry := &CacheEntry{
		Chunks:     chunks,
		Embeddings: make([][]float64, 0, len(chunks)),
		Metadata:   make([]ChunkMetadata, 0, len(chunks)),
	}
	for idx, chunk := range chunks {
		vector, err := i.embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", idx, airline, err)
		}
		entry.Embeddings = append(entry.Embeddings, vector)
		entry.Metadata = append(entry.Metadata, ChunkMetadata{Airline: airline, ChunkIndex: idx, TotalChunks: len(chunks)})
	}
	i.logger.InfoContext(ctx, "embedding_cache_built",
		slog.String("airline", airline),
		slog.Int("chunks", len(chunks)),
	)
	return entry, nil
}

func (i *Index) persist(ctx context.Context, key string, entry *CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode embedding cache: %w", err)
	}
	if _, err := i.store.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write embedding cache %q: %w", key, err)
	}
	return nil
}

func (i *Index) embed(ctx context.Context, text string) ([]float64, error) {
	return retry.DoWithData(
		func() ([]float64, error) {
			return i.embedder.Embed(ctx, text)
		},
		retry.Context(ctx),
		retry.Attempts(i.retryAttempts),
		retry.Delay(i.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
