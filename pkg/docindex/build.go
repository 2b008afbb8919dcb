package docindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/tmc/langchaingo/textsplitter"
)

var (
	defaultSeparators  = []string{"\n\n", "\n", " ", ""}
	pythonSeparators   = []string{"\nclass ", "\ndef ", "\n\t", "\n", " ", ""}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// BuildStats summarizes a Build run.
type BuildStats struct {
	Files  int
	Chunks int
}

// Build replaces the index contents with the chunks of every matching file
// under dir. Hidden directories are skipped.
func (idx *Index) Build(ctx context.Context, dir string) (BuildStats, error) {
	var stats BuildStats
	var chunks []Chunk

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(idx.cfg.Extensions, ext) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		parts, err := idx.splitterFor(ext).SplitText(string(data))
		if err != nil {
			return fmt.Errorf("failed to split %s: %w", rel, err)
		}
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				ID:     fmt.Sprintf("%s#%d", rel, len(chunks)),
				Source: rel,
				Text:   p,
			})
		}
		stats.Files++
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	for start := 0; start < len(chunks); start += idx.cfg.BatchSize {
		end := min(start+idx.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := idx.cfg.Embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return stats, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}
		for i, v := range vectors {
			chunks[start+i].Vector = v
		}
	}

	if err := idx.replace(chunks); err != nil {
		return stats, err
	}

	stats.Chunks = len(chunks)
	idx.log.Info("docindex: built", "dir", dir, "files", stats.Files, "chunks", stats.Chunks)
	return stats, nil
}

func (idx *Index) splitterFor(ext string) textsplitter.TextSplitter {
	separators := defaultSeparators
	switch ext {
	case ".md":
		separators = markdownSeparators
	case ".py":
		separators = pythonSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(idx.cfg.ChunkSize),
		textsplitter.WithChunkOverlap(idx.cfg.ChunkOverlap),
		textsplitter.WithSeparators(separators),
	)
}

func (idx *Index) replace(chunks []Chunk) error {
	if err := idx.db.DropPrefix([]byte(chunkPrefix)); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	wb := idx.db.NewWriteBatch()
	defer wb.Cancel()
	for i, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode chunk %s: %w", c.ID, err)
		}
		key := []byte(fmt.Sprintf("%s%08d", chunkPrefix, i))
		if err := wb.SetEntry(badger.NewEntry(key, data)); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", c.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush index: %w", err)
	}

	idx.mu.Lock()
	idx.chunks = chunks
	idx.mu.Unlock()
	return nil
}
