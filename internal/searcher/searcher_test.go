package searcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcvicker/ember/internal/embedder"
	"github.com/sammcvicker/ember/internal/hasher"
	"github.com/sammcvicker/ember/internal/storage"
)

type fakeEmbedder struct {
	dim int
	vec []float32
}

func (f *fakeEmbedder) Name() string        { return "fake" }
func (f *fakeEmbedder) Dim() int            { return f.dim }
func (f *fakeEmbedder) Fingerprint() string { return "fake-fp" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([]embedder.Vector, error) {
	out := make([]embedder.Vector, len(texts))
	for i := range texts {
		v := make(embedder.Vector, f.dim)
		copy(v, f.vec)
		out[i] = v
	}
	return out, nil
}

func openTestDB(t *testing.T, dim int) *storage.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := storage.Open(path, dim)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedChunk(t *testing.T, db *storage.DB, path, content string, vec []float32) storage.Chunk {
	t.Helper()
	c := storage.Chunk{
		ContentHash: hasher.Hash([]byte(content)),
		ProjectID:   "proj",
		Path:        path,
		Lang:        "go",
		Symbol:      "Foo",
		StartLine:   1,
		EndLine:     3,
		Content:     content,
		FileHash:    hasher.Hash([]byte(path + content)),
		TreeSHA:     "tree-1",
	}
	require.NoError(t, db.UpsertChunks([]storage.Chunk{c}))
	if vec != nil {
		require.NoError(t, db.UpsertVectors(
			map[string][]float32{c.ContentHash.String(): vec},
			map[string]string{c.ContentHash.String(): path},
			map[string]string{c.ContentHash.String(): "go"},
		))
	}
	return c
}

func TestSearchRejectsNonPositiveTopK(t *testing.T) {
	db := openTestDB(t, 4)
	s := New(db, &fakeEmbedder{dim: 4}, nil)

	_, err := s.Search(context.Background(), Query{Text: "foo", TopK: 0})
	require.Error(t, err)
}

func TestSearchRejectsBlankQueryText(t *testing.T) {
	db := openTestDB(t, 4)
	s := New(db, &fakeEmbedder{dim: 4}, nil)

	_, err := s.Search(context.Background(), Query{Text: "   ", TopK: 5})
	require.Error(t, err)
}

func TestSearchFindsLexicalOnlyMatch(t *testing.T) {
	db := openTestDB(t, 4)
	c := seedChunk(t, db, "server/handler.go", "func HandleRequest(w http.ResponseWriter) {}", nil)

	s := New(db, &fakeEmbedder{dim: 4, vec: []float32{9, 9, 9, 9}}, nil)
	results, err := s.Search(context.Background(), Query{Text: "HandleRequest", TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, c.ContentHash.String(), results[0].ContentHash)
	assert.GreaterOrEqual(t, results[0].LexicalRank, 0)
	assert.Equal(t, -1, results[0].VectorRank)
	assert.Greater(t, results[0].FusedScore, 0.0)
}

func TestSearchFusesLexicalAndVectorHits(t *testing.T) {
	db := openTestDB(t, 4)
	// A candidate that matches both lexically and by vector proximity
	// should outrank one that only matches on one pool.
	both := seedChunk(t, db, "server/auth.go", "func AuthenticateUser(token string) bool { return true }", []float32{1, 0, 0, 0})
	lexOnly := seedChunk(t, db, "server/other.go", "func AuthenticateUser() {}", nil)

	s := New(db, &fakeEmbedder{dim: 4, vec: []float32{1, 0, 0, 0}}, nil)
	results, err := s.Search(context.Background(), Query{Text: "AuthenticateUser", TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, both.ContentHash.String(), results[0].ContentHash)
	assert.Equal(t, lexOnly.ContentHash.String(), results[1].ContentHash)
	assert.Greater(t, results[0].FusedScore, results[1].FusedScore)
}

func TestSearchAppliesLangAndPathFilters(t *testing.T) {
	db := openTestDB(t, 4)
	seedChunk(t, db, "server/handler.go", "func HandleRequest() {}", []float32{1, 0, 0, 0})

	s := New(db, &fakeEmbedder{dim: 4, vec: []float32{1, 0, 0, 0}}, nil)
	results, err := s.Search(context.Background(), Query{Text: "HandleRequest", TopK: 5, PathFilter: "client/*"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTiebreaksByPathThenStartLine(t *testing.T) {
	db := openTestDB(t, 4)
	// Equal fused scores: b.go is the only lexical hit and a.go the
	// only vector hit, each at rank 0 of its own pool, so both score
	// 1/(kRRF+0) and only the tiebreak can order them.
	seedChunk(t, db, "b.go", "func TargetMatch() {}", nil)
	seedChunk(t, db, "a.go", "func OtherName() {}", []float32{1, 0, 0, 0})

	s := New(db, &fakeEmbedder{dim: 4, vec: []float32{1, 0, 0, 0}}, nil)
	results, err := s.Search(context.Background(), Query{Text: "TargetMatch", TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// a.go sorts before b.go on the path tiebreak.
	assert.Equal(t, "a.go", results[0].Path)
	assert.Equal(t, "b.go", results[1].Path)
}

func TestSearchOmitsCandidatesMissingFromStorage(t *testing.T) {
	db := openTestDB(t, 4)
	seedChunk(t, db, "server/handler.go", "func HandleRequest() {}", []float32{1, 0, 0, 0})
	// A vector row with no chunk row behind it: the vector pool returns
	// it, hydration cannot find it, so it is left out of the results.
	orphan := hasher.Hash([]byte("func Orphan() {}")).String()
	require.NoError(t, db.UpsertVectors(map[string][]float32{orphan: {1, 0, 0, 0}}, nil, nil))

	s := New(db, &fakeEmbedder{dim: 4, vec: []float32{1, 0, 0, 0}}, nil)
	results, err := s.Search(context.Background(), Query{Text: "HandleRequest", TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchRespectsTopKLimit(t *testing.T) {
	db := openTestDB(t, 4)
	for i := 0; i < 5; i++ {
		path := filepath.Join("pkg", string(rune('a'+i))+".go")
		seedChunk(t, db, path, "func CommonMatch() {}"+string(rune('a'+i)), nil)
	}

	s := New(db, &fakeEmbedder{dim: 4}, nil)
	results, err := s.Search(context.Background(), Query{Text: "CommonMatch", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFuseUnweightedRRFSumsContributionsAcrossPools(t *testing.T) {
	lex := []storage.LexicalResult{{ContentHash: "h1"}, {ContentHash: "h2"}}
	vec := []storage.VectorResult{{ContentHash: "h2", Distance: 0.1}, {ContentHash: "h3", Distance: 0.2}}

	out := fuse(lex, vec)

	byHash := make(map[string]fusedCandidate, len(out))
	for _, c := range out {
		byHash[c.contentHash] = c
	}
	require.Contains(t, byHash, "h1")
	require.Contains(t, byHash, "h2")
	require.Contains(t, byHash, "h3")

	// h2 appears in both pools (lex rank 1, vec rank 0) so its score is
	// the sum of both contributions.
	wantH2 := 1.0/(kRRF+1) + 1.0/(kRRF+0)
	assert.InDelta(t, wantH2, byHash["h2"].score, 1e-9)
	assert.InDelta(t, 1.0/(kRRF+0), byHash["h1"].score, 1e-9)
	assert.InDelta(t, 1.0/(kRRF+1), byHash["h3"].score, 1e-9)
	assert.Equal(t, 0.1, byHash["h2"].vecDistance)
	assert.Equal(t, -1, byHash["h1"].vecRank)
	assert.Equal(t, -1, byHash["h3"].lexRank)
}
