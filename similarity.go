package neuralmem

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
)

// VectorIndex is the injectable similarity-search strategy. The default
// implementation stores vectors in the sqlite-vec virtual table next to the
// pattern rows; the chromem subpackage provides an in-memory alternative.
//
// Query returns matches ordered descending by similarity. Insertion is
// incremental; readers never observe a partially inserted vector.
type VectorIndex interface {
	Index(ctx context.Context, patternID int64, patternContext string, embedding []float32) error
	Query(ctx context.Context, embedding []float32, k int, contextFilter string) ([]Match, error)
	Remove(ctx context.Context, patternID int64) error
}

func serializeEmbedding(embedding []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(embedding)
}

// deserializeEmbedding reverses SerializeFloat32 (little-endian float32 blob).
func deserializeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// sqliteIndex is the default VectorIndex over the vec_patterns table.
type sqliteIndex struct {
	s *Store
}

func (ix *sqliteIndex) Index(ctx context.Context, patternID int64, patternContext string, embedding []float32) error {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}

	// vec0 has no upsert; replace any previous vector for this pattern
	return ix.s.withRetry(func() error {
		tx, err := ix.s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, queryDeleteVecPattern, patternID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, queryInsertVecPattern, patternID, blob); err != nil {
			return err
		}

		return tx.Commit()
	})
}

func (ix *sqliteIndex) Query(ctx context.Context, embedding []float32, k int, contextFilter string) ([]Match, error) {
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return nil, err
	}

	// the KNN constraint applies before the join filter, so over-fetch when
	// restricting to a context and trim afterwards
	fetch := k
	q := `
		SELECT v.pattern_id, v.distance
		FROM vec_patterns v
		JOIN patterns p ON p.id = v.pattern_id
		WHERE v.embedding MATCH ?
		  AND k = ?
		ORDER BY v.distance, p.last_modified DESC
	`
	args := []any{blob, fetch}

	if contextFilter != "" {
		fetch = k * 4
		q = `
			SELECT v.pattern_id, v.distance
			FROM vec_patterns v
			JOIN patterns p ON p.id = v.pattern_id
			WHERE v.embedding MATCH ?
			  AND k = ?
			  AND p.context = ?
			ORDER BY v.distance, p.last_modified DESC
		`
		args = []any{blob, fetch, contextFilter}
	}

	rows, err := ix.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id int64
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		matches = append(matches, Match{PatternID: id, Similarity: 1 - distance})
		if len(matches) == k {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return matches, nil
}

func (ix *sqliteIndex) Remove(ctx context.Context, patternID int64) error {
	_, err := ix.s.db.ExecContext(ctx, queryDeleteVecPattern, patternID)
	return err
}

// SearchSimilar returns up to k patterns nearest to the query embedding,
// ordered descending by similarity, optionally restricted to one context.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, k int, contextFilter string) ([]Match, error) {
	if len(embedding) != s.cfg.Dimensions {
		return nil, fmt.Errorf("search similar: %w: got %d, want %d",
			ErrDimensionMismatch, len(embedding), s.cfg.Dimensions)
	}
	if k <= 0 {
		k = 10
	}

	matches, err := s.index.Query(ctx, embedding, k, contextFilter)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}

	return matches, nil
}
