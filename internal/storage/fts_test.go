package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTSQueryJoinsBareTermsWithAnd(t *testing.T) {
	got := parseFTSQuery("parse config file")
	assert.Equal(t, "parse AND config AND file", got)
}

func TestParseFTSQueryPreservesQuotedPhrase(t *testing.T) {
	got := parseFTSQuery(`"connection pool" timeout`)
	assert.Contains(t, got, `"connection pool"`)
	assert.Contains(t, got, "timeout")
}

func TestParseFTSQueryUppercasesBareOperators(t *testing.T) {
	got := parseFTSQuery("parser or tokenizer")
	assert.Equal(t, "parser OR tokenizer", got)
}

func TestParseFTSQueryLeavesExplicitOperatorsAlone(t *testing.T) {
	got := parseFTSQuery("parser AND tokenizer")
	assert.Equal(t, "parser AND tokenizer", got)
}

func TestSearchLexicalRejectsEmptyQuery(t *testing.T) {
	db := openTestDB(t, 4)
	_, err := db.SearchLexical("   ", 10, "", "")
	require.Error(t, err)
}

func TestSearchLexicalFindsMatchingSymbol(t *testing.T) {
	db := openTestDB(t, 4)
	c := makeChunk("server/handler.go", "func HandleRequest(w http.ResponseWriter) {}", "tree-1")
	c.Symbol = "HandleRequest"
	require.NoError(t, db.UpsertChunks([]Chunk{c}))

	results, err := db.SearchLexical("HandleRequest", 10, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, c.ContentHash.String(), results[0].ContentHash)
}

func TestSearchLexicalFiltersByLang(t *testing.T) {
	db := openTestDB(t, 4)
	c := makeChunk("a.py", "def handle_request(): pass", "tree-1")
	c.Lang = "py"
	c.Symbol = "handle_request"
	require.NoError(t, db.UpsertChunks([]Chunk{c}))

	results, err := db.SearchLexical("handle_request", 10, "", "go")
	require.NoError(t, err)
	assert.Empty(t, results)
}
