// Package config loads the .ember/config file. Config file parsing is a
// shell-layer concern (spec §1); the core never reads this file
// itself, but the CLI shell needs a place to keep the embedder
// selection and the service socket/PID paths.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sammcvicker/ember/internal/hasher"
)

// EmbedderConfig selects and configures an Embedder implementation.
type EmbedderConfig struct {
	// Backend names the embedder implementation: "ollama" (default).
	Backend string `json:"backend,omitempty"`

	// OllamaURL is the base URL of the Ollama server.
	OllamaURL string `json:"ollama_url,omitempty"`

	// OllamaModel is the model name passed to Ollama's /api/embed.
	OllamaModel string `json:"ollama_model,omitempty"`

	// UseServer runs the embedder behind a long-lived local service
	// instead of loading the model in-process on every invocation.
	UseServer bool `json:"use_server,omitempty"`
}

// SearchConfig holds default search parameters.
type SearchConfig struct {
	// DefaultTopK is used when a caller does not specify topk.
	DefaultTopK int `json:"default_topk,omitempty"`
}

// Config is the contents of .ember/config.
type Config struct {
	Schema   int             `json:"schema"`
	Embedder *EmbedderConfig `json:"embedder,omitempty"`
	Search   *SearchConfig   `json:"search,omitempty"`
}

// CurrentSchema is the config file's own schema version (distinct from
// the storage engine's schema_version).
const CurrentSchema = 1

// DefaultConfig returns Ember's built-in defaults.
func DefaultConfig() *Config {
	return &Config{Schema: CurrentSchema}
}

// Load reads .ember/config under root. A missing file yields defaults,
// not an error.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ".ember", "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to .ember/config under root, creating the directory
// if needed.
func Save(root string, cfg *Config) error {
	dir := filepath.Join(root, ".ember")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config"), data, 0o644)
}

// GetEmbedderConfig returns the embedder config with defaults applied.
func (c *Config) GetEmbedderConfig() EmbedderConfig {
	cfg := EmbedderConfig{
		Backend:     "ollama",
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "nomic-embed-text",
	}
	if c.Embedder != nil {
		if c.Embedder.Backend != "" {
			cfg.Backend = c.Embedder.Backend
		}
		if c.Embedder.OllamaURL != "" {
			cfg.OllamaURL = c.Embedder.OllamaURL
		}
		if c.Embedder.OllamaModel != "" {
			cfg.OllamaModel = c.Embedder.OllamaModel
		}
		cfg.UseServer = c.Embedder.UseServer
	}
	return cfg
}

// GetSearchConfig returns the search config with defaults applied.
func (c *Config) GetSearchConfig() SearchConfig {
	cfg := SearchConfig{DefaultTopK: 10}
	if c.Search != nil && c.Search.DefaultTopK > 0 {
		cfg.DefaultTopK = c.Search.DefaultTopK
	}
	return cfg
}

// Dir returns the .ember directory path under root.
func Dir(root string) string {
	return filepath.Join(root, ".ember")
}

// DBPath returns the storage engine's database file path under root.
func DBPath(root string) string {
	return filepath.Join(Dir(root), "index.db")
}

// StatePath returns the human-inspectable metadata mirror's path.
func StatePath(root string) string {
	return filepath.Join(Dir(root), "state")
}

// LastSearchPath returns the opaque last-search cache path.
func LastSearchPath(root string) string {
	return filepath.Join(Dir(root), ".last_search")
}

// SocketPath returns the embedding service's Unix socket path. It is
// derived from root's own hash rather than root's path directly since
// the socket path must live in a short directory (OS path-length
// limits, spec §4.8) and repository paths are not bounded in length.
func SocketPath(root string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("ember-%s.sock", shortHash(root)))
}

// PIDPath returns the embedding server's PID file path.
func PIDPath(root string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("ember-%s.pid", shortHash(root)))
}

func shortHash(s string) string {
	return hasher.Hash([]byte(s)).ShortString(12)
}

// ProjectID derives the opaque project identifier the storage engine
// keys chunks under, deterministically from root so the same
// repository always maps to the same id across runs and machines.
func ProjectID(root string) string {
	return shortHash(root)
}
