package storage

import (
	"database/sql"
	"fmt"

	"github.com/sammcvicker/ember/internal/embererr"
	"github.com/sammcvicker/ember/internal/hasher"
)

// UpsertChunks stages and inserts/updates the rows for chunks (steps 1
// and 2 of the write ordering: §4.5 of the storage contract). All
// chunks in one call share a single transaction so a file's chunk set
// becomes visible atomically.
func (db *DB) UpsertChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return &embererr.StorageFailureError{Op: "begin upsert chunks", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO chunks
			(content_hash, project_id, path, lang, symbol, start_line, end_line, content, file_hash, tree_sha)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, path) DO UPDATE SET
			lang = excluded.lang,
			symbol = excluded.symbol,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			content = excluded.content,
			file_hash = excluded.file_hash,
			tree_sha = excluded.tree_sha
	`)
	if err != nil {
		return &embererr.StorageFailureError{Op: "prepare upsert chunks", Err: err}
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(
			c.ContentHash.String(), c.ProjectID, c.Path, c.Lang, c.Symbol,
			c.StartLine, c.EndLine, c.Content, c.FileHash.String(), c.TreeSHA,
		); err != nil {
			return &embererr.StorageFailureError{Op: fmt.Sprintf("upsert chunk %s", c.ContentHash.ShortString(8)), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &embererr.StorageFailureError{Op: "commit upsert chunks", Err: err}
	}
	return nil
}

// UpsertVectors writes step 3: the vectors for a just-staged chunk set,
// with the dimension guard. vectors maps content_hash -> embedding;
// path and lang are the auxiliary columns the vector index filters on
// during k-NN search.
func (db *DB) UpsertVectors(vectors map[string][]float32, paths map[string]string, langs map[string]string) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return &embererr.StorageFailureError{Op: "begin upsert vectors", Err: err}
	}
	defer tx.Rollback()

	del, err := tx.Prepare("DELETE FROM chunk_vectors WHERE content_hash = ?")
	if err != nil {
		return &embererr.StorageFailureError{Op: "prepare vector delete", Err: err}
	}
	defer del.Close()

	ins, err := tx.Prepare(`
		INSERT INTO chunk_vectors (content_hash, embedding, path, lang)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return &embererr.StorageFailureError{Op: "prepare vector insert", Err: err}
	}
	defer ins.Close()

	for hash, vec := range vectors {
		if len(vec) != db.dim {
			return &embererr.DimensionMismatchError{ChunkHash: hash, Expected: db.dim, Got: len(vec)}
		}
		// vec0 has no native upsert; delete-then-insert keeps the row
		// keyed by content_hash stable across reindexes.
		if _, err := del.Exec(hash); err != nil {
			return &embererr.StorageFailureError{Op: fmt.Sprintf("replace vector %s", hash), Err: err}
		}
		if _, err := ins.Exec(hash, float32SliceToBytes(vec), paths[hash], langs[hash]); err != nil {
			return &embererr.StorageFailureError{Op: fmt.Sprintf("insert vector %s", hash), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &embererr.StorageFailureError{Op: "commit upsert vectors", Err: err}
	}
	return nil
}

// DeleteStalePathChunks is step 4: for path, delete chunk rows keyed to
// an older tree_sha than currentTreeSHA whose content_hash is not in
// keepHashes (the set just staged for this path). Triggers propagate
// the deletion to the lexical index; the vector row for each deleted
// content_hash is deleted alongside unless a surviving chunk row (for
// another path) still references that hash.
func (db *DB) DeleteStalePathChunks(path, currentTreeSHA string, keepHashes []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return &embererr.StorageFailureError{Op: "begin delete stale chunks", Err: err}
	}
	defer tx.Rollback()

	placeholders, args := inClause(keepHashes)
	args = append([]any{path, currentTreeSHA}, args...)

	rows, err := tx.Query(fmt.Sprintf(`
		SELECT content_hash FROM chunks
		WHERE path = ? AND tree_sha != ? AND content_hash NOT IN (%s)
	`, placeholders), args...)
	if err != nil {
		return &embererr.StorageFailureError{Op: "query stale chunks", Err: err}
	}
	var stale []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return &embererr.StorageFailureError{Op: "scan stale chunk", Err: err}
		}
		stale = append(stale, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &embererr.StorageFailureError{Op: "iterate stale chunks", Err: err}
	}

	if _, err := tx.Exec(fmt.Sprintf(`
		DELETE FROM chunks WHERE path = ? AND tree_sha != ? AND content_hash NOT IN (%s)
	`, placeholders), args...); err != nil {
		return &embererr.StorageFailureError{Op: "delete stale chunks", Err: err}
	}

	for _, h := range stale {
		if _, err := tx.Exec("DELETE FROM chunk_vectors WHERE content_hash = ? AND NOT EXISTS (SELECT 1 FROM chunks WHERE content_hash = ?)", h, h); err != nil {
			return &embererr.StorageFailureError{Op: fmt.Sprintf("delete stale vector %s", h), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &embererr.StorageFailureError{Op: "commit delete stale chunks", Err: err}
	}
	return nil
}

// DeleteChunksByPath removes every chunk for path (step 8: the
// deletion set, for files that were themselves deleted or renamed
// away).
func (db *DB) DeleteChunksByPath(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return &embererr.StorageFailureError{Op: "begin delete path", Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT content_hash FROM chunks WHERE path = ?", path)
	if err != nil {
		return &embererr.StorageFailureError{Op: "query path chunks", Err: err}
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return &embererr.StorageFailureError{Op: "scan path chunk", Err: err}
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &embererr.StorageFailureError{Op: "iterate path chunks", Err: err}
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE path = ?", path); err != nil {
		return &embererr.StorageFailureError{Op: "delete path chunks", Err: err}
	}
	for _, h := range hashes {
		if _, err := tx.Exec("DELETE FROM chunk_vectors WHERE content_hash = ? AND NOT EXISTS (SELECT 1 FROM chunks WHERE content_hash = ?)", h, h); err != nil {
			return &embererr.StorageFailureError{Op: fmt.Sprintf("delete vector %s", h), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &embererr.StorageFailureError{Op: "commit delete path", Err: err}
	}
	return nil
}

// FinalSweep is step 10: delete every chunk whose tree_sha is older
// than lastTreeSHA, run once per indexing run after the metadata write
// that set last_tree_sha. lastTreeSHA is compared by string inequality
// against the single current value, not a temporal ordering, since
// tree identities have no inherent order; "older" here means "not the
// tree this run just finished on."
func (db *DB) FinalSweep(lastTreeSHA string) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, &embererr.StorageFailureError{Op: "begin final sweep", Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT content_hash FROM chunks WHERE tree_sha != ?", lastTreeSHA)
	if err != nil {
		return 0, &embererr.StorageFailureError{Op: "query swept chunks", Err: err}
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, &embererr.StorageFailureError{Op: "scan swept chunk", Err: err}
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, &embererr.StorageFailureError{Op: "iterate swept chunks", Err: err}
	}

	result, err := tx.Exec("DELETE FROM chunks WHERE tree_sha != ?", lastTreeSHA)
	if err != nil {
		return 0, &embererr.StorageFailureError{Op: "final sweep delete", Err: err}
	}
	for _, h := range hashes {
		if _, err := tx.Exec("DELETE FROM chunk_vectors WHERE content_hash = ? AND NOT EXISTS (SELECT 1 FROM chunks WHERE content_hash = ?)", h, h); err != nil {
			return 0, &embererr.StorageFailureError{Op: fmt.Sprintf("final sweep vector %s", h), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &embererr.StorageFailureError{Op: "commit final sweep", Err: err}
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// GetChunksByHash hydrates full Chunk rows for a set of content
// hashes, used by the searcher to go from ranked identifiers back to
// full chunk bodies. Hashes with no surviving row are simply absent
// from the result map; callers log and omit them.
func (db *DB) GetChunksByHash(hashes []string) (map[string]Chunk, error) {
	out := make(map[string]Chunk, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	placeholders, args := inClause(hashes)
	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT content_hash, project_id, path, lang, symbol, start_line, end_line, content, file_hash, tree_sha
		FROM chunks WHERE content_hash IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, &embererr.StorageFailureError{Op: "query chunks by hash", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		var contentHash, fileHash string
		var lang, symbol sql.NullString
		if err := rows.Scan(&contentHash, &c.ProjectID, &c.Path, &lang, &symbol,
			&c.StartLine, &c.EndLine, &c.Content, &fileHash, &c.TreeSHA); err != nil {
			return nil, &embererr.StorageFailureError{Op: "scan chunk", Err: err}
		}
		if d, err := hasher.Parse(contentHash); err == nil {
			c.ContentHash = d
		}
		if d, err := hasher.Parse(fileHash); err == nil {
			c.FileHash = d
		}
		c.Lang = lang.String
		c.Symbol = symbol.String
		out[contentHash] = c
	}
	return out, rows.Err()
}

// BumpUnchangedTreeSHA promotes every remaining chunk row stamped with
// oldTreeSHA to newTreeSHA. Called once per incremental run after the
// work set and deletion set have been processed: rows for paths this
// run touched no longer carry oldTreeSHA (UpsertChunks/
// DeleteStalePathChunks already moved them to newTreeSHA, or
// DeleteChunksByPath removed them outright), so only genuinely
// untouched files are left to bump. This keeps an unchanged file's
// chunks from being swept away by FinalSweep purely because that file
// wasn't part of this run's work set.
func (db *DB) BumpUnchangedTreeSHA(oldTreeSHA, newTreeSHA string) (int64, error) {
	if oldTreeSHA == "" || oldTreeSHA == newTreeSHA {
		return 0, nil
	}
	result, err := db.conn.Exec("UPDATE chunks SET tree_sha = ? WHERE tree_sha = ?", newTreeSHA, oldTreeSHA)
	if err != nil {
		return 0, &embererr.StorageFailureError{Op: "bump unchanged tree_sha", Err: err}
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// CountChunksByPath returns how many chunk rows currently exist for
// path, used by the indexer to report a deletion count before removing
// them.
func (db *DB) CountChunksByPath(path string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM chunks WHERE path = ?", path).Scan(&n)
	if err != nil {
		return 0, &embererr.StorageFailureError{Op: "count chunks by path", Err: err}
	}
	return n, nil
}

func inClause(values []string) (string, []any) {
	if len(values) == 0 {
		return "''", nil
	}
	placeholders := make([]byte, 0, len(values)*2)
	args := make([]any, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = v
	}
	return string(placeholders), args
}
