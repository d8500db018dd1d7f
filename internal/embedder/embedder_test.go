package embedder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectModelPicksHighestDimWithinBudget(t *testing.T) {
	class, ok := SelectModel(600)
	require.True(t, ok)
	assert.LessOrEqual(t, class.ApproxMemoryMB, 600)

	for _, m := range KnownModels {
		if m.ApproxMemoryMB <= 600 {
			assert.GreaterOrEqual(t, class.Dim, m.Dim)
		}
	}
}

func TestSelectModelNoneFit(t *testing.T) {
	_, ok := SelectModel(1)
	assert.False(t, ok)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "unknown"})
	assert.Error(t, err)
}

func TestNewDefaultsToOllama(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.Name())
	assert.Equal(t, 768, e.Dim())
}

func fakeOllamaServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		texts, ok := req.Input.([]any)
		require.True(t, ok)

		embeddings := make([][]float32, len(texts))
		for i := range texts {
			v := make([]float32, dim)
			v[0] = 3
			v[1] = 4
			embeddings[i] = v
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Model: req.Model, Embeddings: embeddings})
	}))
}

func TestEmbedReturnsNormalizedVectors(t *testing.T) {
	srv := fakeOllamaServer(t, 4)
	defer srv.Close()

	e, err := newOllama(srv.URL, "nomic-embed-text")
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	for _, v := range vectors {
		var sumSq float64
		for _, x := range v {
			sumSq += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-6)
	}
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	e, err := newOllama("http://localhost:11434", "nomic-embed-text")
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), nil)
	assert.Error(t, err)
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	a, err := newOllama("http://localhost:11434", "nomic-embed-text")
	require.NoError(t, err)
	b, err := newOllama("http://localhost:11434", "nomic-embed-text")
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintDiffersOnModel(t *testing.T) {
	a, err := newOllama("http://localhost:11434", "nomic-embed-text")
	require.NoError(t, err)
	b, err := newOllama("http://localhost:11434", "all-minilm")
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestNormalizeZeroVectorUnchanged(t *testing.T) {
	v := normalize([]float32{0, 0, 0})
	assert.Equal(t, Vector{0, 0, 0}, v)
}
