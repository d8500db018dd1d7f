// Package chunker turns file bytes into an ordered sequence of semantic
// chunks. A structural, grammar-driven strategy runs first for
// supported languages; a line-window strategy is the fallback for
// everything else, or when the structural strategy finds nothing.
package chunker

import (
	"path/filepath"
	"strings"
)

// ChunkCandidate is one chunk extracted from a file, prior to hashing
// and storage. Symbol is empty for line-window chunks.
type ChunkCandidate struct {
	StartLine int
	EndLine   int
	Symbol    string
	Content   string
}

// Config controls both chunking strategies.
type Config struct {
	// WindowLines is W, the line-window strategy's window size.
	WindowLines int
	// StrideLines is S, the line-window strategy's stride. Must
	// satisfy 0 < StrideLines <= WindowLines.
	StrideLines int
	// MaxChunkLines bounds a structural chunk before it is split by
	// the line-window strategy's windowing logic.
	MaxChunkLines int
	// MinChunkLines drops structural chunks smaller than this (they
	// are still covered by a neighboring or enclosing chunk).
	MinChunkLines int
}

// DefaultConfig returns W=120, S=100 per spec, with structural
// chunk-size bounds matching the same window.
func DefaultConfig() Config {
	return Config{
		WindowLines:   120,
		StrideLines:   100,
		MaxChunkLines: 120,
		MinChunkLines: 1,
	}
}

// extensionToLanguage is the fixed extension-to-language table.
var extensionToLanguage = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyw":   "python",
	".js":    "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".mts":   "typescript",
	".cts":   "typescript",
	".rs":    "rust",
	".rb":    "ruby",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".hxx":   "cpp",
	".cs":    "csharp",
	".sh":    "bash",
	".bash":  "bash",
	".zsh":   "bash",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
	".lua":   "lua",
	".sql":   "sql",
}

// structuralLanguages lists languages the structural strategy can
// parse; everything else in extensionToLanguage still gets a lang tag
// but always takes the line-window strategy.
var structuralLanguages = map[string]bool{
	"go": true, "python": true, "javascript": true, "typescript": true,
	"rust": true, "ruby": true, "java": true, "c": true, "cpp": true,
	"csharp": true, "bash": true,
}

// DetectLanguage derives a language tag from a filename's extension,
// falling back to well-known extensionless filenames.
func DetectLanguage(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if lang, ok := extensionToLanguage[ext]; ok {
		return lang
	}
	switch strings.ToLower(filepath.Base(filename)) {
	case "dockerfile":
		return "dockerfile"
	case "makefile", "gnumakefile":
		return "make"
	}
	return ""
}

var skipExtensions = map[string]bool{
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".xml": true, ".html": true, ".css": true, ".scss": true,
	".less": true, ".svg": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".ico": true, ".woff": true, ".woff2": true, ".ttf": true,
	".eot": true, ".map": true, ".lock": true, ".sum": true, ".mod": true,
	".log": true, ".env": true,
}

// IsIndexableFile reports whether the indexer's extension whitelist
// accepts filename. Hidden files, generated/minified/declaration
// files, and well-known non-code extensions are excluded.
func IsIndexableFile(filename string) bool {
	base := filepath.Base(filename)
	if strings.HasPrefix(base, ".") {
		return false
	}
	lowerBase := strings.ToLower(base)
	if strings.HasSuffix(lowerBase, ".min.js") ||
		strings.HasSuffix(lowerBase, ".min.css") ||
		strings.HasSuffix(lowerBase, ".d.ts") ||
		strings.HasSuffix(lowerBase, ".d.mts") ||
		strings.HasSuffix(lowerBase, ".d.cts") {
		return false
	}
	if skipExtensions[strings.ToLower(filepath.Ext(filename))] {
		return false
	}
	return DetectLanguage(filename) != ""
}

// SupportedStructuralLanguages lists languages with a grammar-driven
// parser available.
func SupportedStructuralLanguages() []string {
	langs := make([]string, 0, len(structuralLanguages))
	for l := range structuralLanguages {
		langs = append(langs, l)
	}
	return langs
}

// Chunker composes the structural and line-window strategies per
// spec §4.3: structural first for supported languages, line-window
// otherwise or on structural failure/empty result.
type Chunker struct {
	cfg        Config
	structural *structuralStrategy
	fallback   *lineWindowStrategy
}

// New builds a Chunker from cfg, defaulting zero fields.
func New(cfg Config) *Chunker {
	if cfg.WindowLines <= 0 {
		cfg.WindowLines = 120
	}
	if cfg.StrideLines <= 0 || cfg.StrideLines > cfg.WindowLines {
		cfg.StrideLines = 100
	}
	if cfg.MaxChunkLines <= 0 {
		cfg.MaxChunkLines = cfg.WindowLines
	}
	if cfg.MinChunkLines <= 0 {
		cfg.MinChunkLines = 1
	}
	return &Chunker{
		cfg:        cfg,
		structural: newStructuralStrategy(cfg),
		fallback:   newLineWindowStrategy(cfg),
	}
}

// Chunk implements the C3 contract: chunk(path, lang, bytes) → ordered
// chunk candidates. On parse/query failure or an empty structural
// result, falls back to the line-window strategy. A caller (the
// indexer) is responsible for treating "zero chunks from a non-empty
// file" as a soft failure that preserves previously indexed chunks.
func (c *Chunker) Chunk(path, lang string, content []byte) ([]ChunkCandidate, error) {
	if structuralLanguages[lang] {
		chunks, err := c.structural.chunk(lang, content)
		if err == nil && len(chunks) > 0 {
			return chunks, nil
		}
	}
	return c.fallback.chunk(content), nil
}

// estimateTokens is a rough ~4-chars-per-token estimate, used only for
// diagnostics (not part of the stored chunk identity or content).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
