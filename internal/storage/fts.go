package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sammcvicker/ember/internal/embererr"
)

// LexicalResult is one hit from the lexical index, ranked ascending by
// FTS5's bm25 rank (lower is more relevant).
type LexicalResult struct {
	ContentHash string
	Path        string
	Symbol      string
	Lang        string
	Rank        float64
}

// SearchLexical runs query against the Porter-stemmed FTS5 index,
// accepting FTS5's own query syntax natively (quoted phrases, AND/OR/
// NOT). Bare whitespace-separated terms with no explicit operator are
// joined with AND so a plain keyword search behaves as expected.
func (db *DB) SearchLexical(query string, k int, pathGlob, lang string) ([]LexicalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &embererr.InvalidQueryError{Reason: "lexical query text is empty"}
	}

	ftsQuery := parseFTSQuery(query)

	sqlQuery := `
		SELECT c.content_hash, c.path, c.symbol, c.lang, fts.rank
		FROM chunks_fts fts
		JOIN chunks c ON c.id = fts.rowid
		WHERE chunks_fts MATCH ?
	`
	args := []any{ftsQuery}
	if pathGlob != "" {
		sqlQuery += " AND c.path GLOB ?"
		args = append(args, pathGlob)
	}
	if lang != "" {
		sqlQuery += " AND c.lang = ?"
		args = append(args, lang)
	}
	sqlQuery += " ORDER BY fts.rank LIMIT ?"
	args = append(args, k)

	rows, err := db.conn.Query(sqlQuery, args...)
	if err != nil {
		return nil, &embererr.StorageFailureError{Op: "lexical search", Err: err}
	}
	defer rows.Close()

	var results []LexicalResult
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.ContentHash, &r.Path, &r.Symbol, &r.Lang, &r.Rank); err != nil {
			return nil, &embererr.StorageFailureError{Op: "scan lexical result", Err: err}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// parseFTSQuery converts free-form query text into FTS5 syntax:
// quoted phrases are preserved, bare boolean operators are upper-cased,
// and unadorned terms are joined with AND.
func parseFTSQuery(query string) string {
	query = strings.TrimSpace(query)

	phrases := extractPhrases(query)
	for i, phrase := range phrases {
		query = strings.Replace(query, fmt.Sprintf(`"%s"`, phrase), phrasePlaceholder(i), 1)
	}

	query = escapeFTSSpecial(query)

	for i, phrase := range phrases {
		query = strings.Replace(query, phrasePlaceholder(i), fmt.Sprintf(`"%s"`, escapeFTSSpecial(phrase)), 1)
	}

	query = normalizeOperators(query)

	if !containsExplicitOperators(query) {
		query = strings.Join(splitPreservingQuotes(query), " AND ")
	}

	return query
}

func phrasePlaceholder(i int) string {
	return fmt.Sprintf("__EMBER_PHRASE_%d__", i)
}

var phraseRe = regexp.MustCompile(`"([^"]+)"`)

func extractPhrases(query string) []string {
	matches := phraseRe.FindAllStringSubmatch(query, -1)
	phrases := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			phrases = append(phrases, m[1])
		}
	}
	return phrases
}

var ftsSpecialReplacer = strings.NewReplacer(
	`"`, `""`,
	`/`, " ",
	`(`, " ",
	`)`, " ",
	`-`, " ",
)

func escapeFTSSpecial(s string) string {
	return ftsSpecialReplacer.Replace(s)
}

var operatorRe = regexp.MustCompile(`\b(and|or|not)\b`)

func normalizeOperators(query string) string {
	return operatorRe.ReplaceAllStringFunc(query, strings.ToUpper)
}

func containsExplicitOperators(query string) bool {
	return strings.Contains(query, " AND ") ||
		strings.Contains(query, " OR ") ||
		strings.Contains(query, " NOT ")
}

func splitPreservingQuotes(query string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false

	for _, r := range query {
		switch r {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case ' ':
			if inQuotes {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, strings.TrimSpace(current.String()))
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, strings.TrimSpace(current.String()))
	}
	return tokens
}
