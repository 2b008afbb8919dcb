// Package docindex maintains a persistent vector index over a directory of
// documents and answers questions from the best matching chunks.
package docindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto"
	"github.com/tmc/langchaingo/embeddings"
)

const (
	chunkPrefix = "chunk/"

	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
	defaultTopK         = 4
	defaultBatchSize    = 32
)

// ErrEmptyIndex is returned when a search runs against an index with no chunks.
var ErrEmptyIndex = errors.New("document index is empty")

// DefaultExtensions are the file types indexed by Build.
var DefaultExtensions = []string{".md", ".txt", ".json", ".py"}

// LLMClient generates the answer text from retrieved context.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Config struct {
	Logger   *slog.Logger
	Embedder embeddings.Embedder
	LLM      LLMClient

	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	BatchSize    int
	Extensions   []string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Embedder == nil {
		return errors.New("embedder is required")
	}
	if c.LLM == nil {
		return errors.New("llm client is required")
	}
	if c.Path == "" && !c.InMemory {
		return errors.New("path is required")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = min(defaultChunkOverlap, c.ChunkSize/10)
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
	return nil
}

// Chunk is a piece of a source document together with its embedding.
type Chunk struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Hit is a chunk matched by Search.
type Hit struct {
	Chunk Chunk
	Score float64
}

type Index struct {
	log   *slog.Logger
	cfg   Config
	db    *badger.DB
	cache *ristretto.Cache

	mu     sync.RWMutex
	chunks []Chunk
}

// Open opens (or creates) the index and loads its chunks into memory.
func Open(cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document index config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open document index: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create query embedding cache: %w", err)
	}

	idx := &Index{
		log:   cfg.Logger,
		cfg:   cfg,
		db:    db,
		cache: cache,
	}
	if err := idx.load(); err != nil {
		idx.Close()
		return nil, err
	}
	idx.log.Info("docindex: opened", "path", cfg.Path, "chunks", idx.Len())
	return idx, nil
}

func (idx *Index) load() error {
	var chunks []Chunk
	err := idx.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var c Chunk
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &c)
			}); err != nil {
				return fmt.Errorf("failed to decode chunk %s: %w", it.Item().Key(), err)
			}
			chunks = append(chunks, c)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}

	idx.mu.Lock()
	idx.chunks = chunks
	idx.mu.Unlock()
	return nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Search returns the k chunks most similar to query, best first.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = idx.cfg.TopK
	}

	idx.mu.RLock()
	chunks := idx.chunks
	idx.mu.RUnlock()
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}

	vec, err := idx.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, Hit{Chunk: c, Score: cosine(vec, c.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (idx *Index) queryVector(ctx context.Context, query string) ([]float32, error) {
	if v, ok := idx.cache.Get(query); ok {
		return v.([]float32), nil
	}
	vec, err := idx.cfg.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	idx.cache.Set(query, vec, 1)
	idx.cache.Wait()
	return vec, nil
}

// Close releases the cache and the underlying database.
func (idx *Index) Close() error {
	idx.cache.Close()
	return idx.db.Close()
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
