package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sammcvicker/ember/internal/hasher"
)

// ollamaEmbedder implements Embedder against a local Ollama server's
// /api/embed endpoint.
type ollamaEmbedder struct {
	baseURL     string
	model       string
	client      *http.Client
	dim         int
	fingerprint string
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

func newOllama(baseURL, model string) (*ollamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	dim := 768
	if class, ok := KnownModels[model]; ok {
		dim = class.Dim
	}

	e := &ollamaEmbedder{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	e.fingerprint = computeFingerprint(model, baseURL, dim)
	return e, nil
}

// computeFingerprint hashes the model's identity and resolved config
// so a changed backend URL or dimension is detectable even when the
// model name string is unchanged.
func computeFingerprint(model, baseURL string, dim int) string {
	digest := hasher.Hash([]byte(fmt.Sprintf("%s|%s|%d", model, baseURL, dim)))
	return model + "-" + digest.ShortString(12)
}

func (e *ollamaEmbedder) Name() string        { return e.model }
func (e *ollamaEmbedder) Dim() int            { return e.dim }
func (e *ollamaEmbedder) Fingerprint() string { return e.fingerprint }

// Embed requests embeddings for texts in one batch request and
// L2-normalizes each result before returning, since Ollama's raw
// output is not guaranteed unit length.
func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedder: Embed called with no texts")
	}

	reqBody := ollamaEmbedRequest{Model: e.model, Input: texts}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("embedder: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("embedder: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: calling ollama: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ollamaErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("embedder: ollama error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("embedder: ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("embedder: parsing response: %w", err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(texts), len(embedResp.Embeddings))
	}

	vectors := make([]Vector, len(embedResp.Embeddings))
	for i, raw := range embedResp.Embeddings {
		vectors[i] = normalize(raw)
	}
	return vectors, nil
}

// normalize returns an L2-normalized copy of v as a Vector. A
// zero vector is returned unchanged rather than divided by zero.
func normalize(v []float32) Vector {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return Vector(v)
	}
	norm := math.Sqrt(sumSq)
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Ping verifies the server is reachable and the model responds.
func (e *ollamaEmbedder) Ping(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedder: ollama not available or model not loaded: %w", err)
	}
	return nil
}
