// Package embedder defines the embedding port and its concrete
// implementations. All vectors an Embedder returns are unit-length.
package embedder

import (
	"context"
	"fmt"
	"sort"
)

// Vector is one embedding, already L2-normalized.
type Vector []float32

// Embedder is the port every embedding backend implements.
type Embedder interface {
	// Name is the stable identifier of the underlying model.
	Name() string
	// Dim is the fixed vector dimension D.
	Dim() int
	// Fingerprint is deterministic over name + version + config, used
	// to detect a stale index built against a different model.
	Fingerprint() string
	// Embed returns one unit vector per input text, in order. texts
	// must be non-empty.
	Embed(ctx context.Context, texts []string) ([]Vector, error)
}

// ModelClass describes a model's resource footprint so the CLI can
// auto-pick a backend without the caller naming one explicitly.
type ModelClass struct {
	Name           string
	Dim            int
	ApproxMemoryMB int
}

// KnownModels is the resource-class table for auto-pick, keyed by
// Ollama model name.
var KnownModels = map[string]ModelClass{
	"nomic-embed-text":       {Name: "nomic-embed-text", Dim: 768, ApproxMemoryMB: 550},
	"all-minilm":             {Name: "all-minilm", Dim: 384, ApproxMemoryMB: 90},
	"mxbai-embed-large":      {Name: "mxbai-embed-large", Dim: 1024, ApproxMemoryMB: 670},
	"snowflake-arctic-embed": {Name: "snowflake-arctic-embed", Dim: 1024, ApproxMemoryMB: 480},
}

// SelectModel picks the model with the highest dimension whose
// footprint fits within maxMemoryMB. Returns false if none fit.
func SelectModel(maxMemoryMB int) (ModelClass, bool) {
	var candidates []ModelClass
	for _, m := range KnownModels {
		if m.ApproxMemoryMB <= maxMemoryMB {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return ModelClass{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Dim > candidates[j].Dim })
	return candidates[0], true
}

// Config selects and configures a concrete Embedder.
type Config struct {
	// Backend names the implementation: "ollama" is the only one
	// currently built.
	Backend string `json:"backend"`

	// OllamaURL is the base URL of the Ollama server.
	OllamaURL string `json:"ollama_url,omitempty"`

	// OllamaModel names the Ollama model to embed with.
	OllamaModel string `json:"ollama_model,omitempty"`

	// MaxMemoryMB bounds auto-pick when OllamaModel is unset.
	MaxMemoryMB int `json:"max_memory_mb,omitempty"`

	// ServerMode runs embedding through the long-lived emberd process
	// instead of an in-process client, when the model's footprint
	// makes per-invocation load costly.
	ServerMode bool `json:"server_mode,omitempty"`
}

// DefaultConfig returns the default embedder configuration.
func DefaultConfig() Config {
	return Config{
		Backend:     "ollama",
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "nomic-embed-text",
		MaxMemoryMB: 1024,
	}
}

// New builds a concrete Embedder from cfg.
func New(cfg Config) (Embedder, error) {
	switch cfg.Backend {
	case "ollama", "":
		model := cfg.OllamaModel
		if model == "" {
			class, ok := SelectModel(cfg.MaxMemoryMB)
			if !ok {
				return nil, fmt.Errorf("embedder: no known model fits within %d MB", cfg.MaxMemoryMB)
			}
			model = class.Name
		}
		return newOllama(cfg.OllamaURL, model)
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q", cfg.Backend)
	}
}
