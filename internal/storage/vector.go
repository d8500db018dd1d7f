package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sammcvicker/ember/internal/embererr"
)

// VectorResult is one hit from the vector index, ranked ascending by
// cosine distance (lower is closer).
type VectorResult struct {
	ContentHash string
	Distance    float64
}

// SearchVector runs a k-NN query over the vector index. pathGlob and
// lang, when non-empty, filter inside the k-NN query itself (against
// the index's auxiliary path/lang columns) rather than as a post-
// filter, so the returned count matches k whenever enough candidates
// satisfy the filter.
func (db *DB) SearchVector(query []float32, k int, pathGlob, lang string) ([]VectorResult, error) {
	if len(query) != db.dim {
		return nil, &embererr.DimensionMismatchError{ChunkHash: "<query>", Expected: db.dim, Got: len(query)}
	}

	sqlQuery := `
		SELECT content_hash, distance FROM chunk_vectors
		WHERE embedding MATCH ? AND k = ?
	`
	args := []any{float32SliceToBytes(query), k}
	if pathGlob != "" {
		sqlQuery += " AND path GLOB ?"
		args = append(args, pathGlob)
	}
	if lang != "" {
		sqlQuery += " AND lang = ?"
		args = append(args, lang)
	}
	sqlQuery += " ORDER BY distance"

	rows, err := db.conn.Query(sqlQuery, args...)
	if err != nil {
		return nil, &embererr.StorageFailureError{Op: "vector search", Err: err}
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ContentHash, &r.Distance); err != nil {
			return nil, &embererr.StorageFailureError{Op: "scan vector result", Err: err}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetVectorsByHash returns the stored embedding for every hash that
// already has one, keyed by content_hash. Hashes with no row are
// simply absent from the result map, letting callers skip re-
// embedding content whose vector is already on disk (a rename lands
// here with its content_hash unchanged, so no new embed is needed).
func (db *DB) GetVectorsByHash(hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	placeholders, args := inClause(hashes)
	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT content_hash, embedding FROM chunk_vectors WHERE content_hash IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, &embererr.StorageFailureError{Op: "query vectors by hash", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var raw []byte
		if err := rows.Scan(&hash, &raw); err != nil {
			return nil, &embererr.StorageFailureError{Op: "scan vector", Err: err}
		}
		vec, err := bytesToFloat32Slice(raw)
		if err != nil {
			return nil, &embererr.StorageFailureError{Op: fmt.Sprintf("decode vector %s", hash), Err: err}
		}
		out[hash] = vec
	}
	return out, rows.Err()
}

// float32SliceToBytes encodes a vector as little-endian 32-bit floats,
// the wire and on-disk format the vector index and the §6 external
// interface both use.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice decodes the inverse of float32SliceToBytes.
func bytesToFloat32Slice(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector byte length %d not a multiple of 4", len(b))
	}
	floats := make([]float32, len(b)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return floats, nil
}
