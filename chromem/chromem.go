// Package chromem provides an in-memory VectorIndex backed by chromem-go,
// for stores that keep embeddings out of SQLite (ephemeral runs, tests, or
// very large vector sets rebuilt on boot).
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/bowerhall/neuralmem"
)

type Index struct {
	col  *chromem.Collection
	dims int
	mu   sync.Mutex
}

func New(dims int) (*Index, error) {
	db := chromem.NewDB()

	// embeddings are always supplied, so no embedding func and default cosine
	col, err := db.CreateCollection("patterns", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Index{col: col, dims: dims}, nil
}

func (ix *Index) Index(ctx context.Context, patternID int64, patternContext string, embedding []float32) error {
	if len(embedding) != ix.dims {
		return fmt.Errorf("index pattern %d: %w: got %d, want %d",
			patternID, neuralmem.ErrDimensionMismatch, len(embedding), ix.dims)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := strconv.FormatInt(patternID, 10)

	// AddDocument does not replace; drop any previous vector first
	_ = ix.col.Delete(ctx, nil, nil, id)

	return ix.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   id,
		Embedding: embedding,
		Metadata:  map[string]string{"context": patternContext},
	})
}

func (ix *Index) Query(ctx context.Context, embedding []float32, k int, contextFilter string) ([]neuralmem.Match, error) {
	if len(embedding) != ix.dims {
		return nil, fmt.Errorf("query: %w: got %d, want %d",
			neuralmem.ErrDimensionMismatch, len(embedding), ix.dims)
	}

	count := ix.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var where map[string]string
	if contextFilter != "" {
		where = map[string]string{"context": contextFilter}
	}

	// chromem rejects nResults larger than the filtered document count, and
	// the count under a where filter is unknown up front; back off until the
	// query fits
	var results []chromem.Result
	for n := k; n >= 1; n-- {
		var err error
		results, err = ix.col.QueryEmbedding(ctx, embedding, n, where, nil)
		if err == nil {
			break
		}
		if n == 1 {
			return nil, err
		}
	}

	matches := make([]neuralmem.Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		matches = append(matches, neuralmem.Match{PatternID: id, Similarity: float64(r.Similarity)})
	}

	return matches, nil
}

func (ix *Index) Remove(ctx context.Context, patternID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.col.Delete(ctx, nil, nil, strconv.FormatInt(patternID, 10))
}
