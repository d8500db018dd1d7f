package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuralChunkGoFunctions(t *testing.T) {
	src := `package main

func add(a, b int) int {
	return a + b
}

func sub(a, b int) int {
	return a - b
}
`
	s := newStructuralStrategy(DefaultConfig())
	chunks, err := s.chunk("go", []byte(src))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "add", chunks[0].Symbol)
	assert.Equal(t, "sub", chunks[1].Symbol)
}

func TestStructuralChunkRecursesIntoNestedMethods(t *testing.T) {
	src := `class Greeter:
    def greet(self):
        return "hi"

    def farewell(self):
        return "bye"
`
	s := newStructuralStrategy(DefaultConfig())
	chunks, err := s.chunk("python", []byte(src))
	require.NoError(t, err)

	var symbols []string
	for _, c := range chunks {
		symbols = append(symbols, c.Symbol)
	}
	assert.Contains(t, symbols, "Greeter")
	assert.Contains(t, symbols, "greet")
	assert.Contains(t, symbols, "farewell")
}

func TestNamedArrowFunctionIsChunked(t *testing.T) {
	src := `const add = (a, b) => a + b;

function other() {
	return 1;
}
`
	s := newStructuralStrategy(DefaultConfig())
	chunks, err := s.chunk("javascript", []byte(src))
	require.NoError(t, err)

	var symbols []string
	for _, c := range chunks {
		symbols = append(symbols, c.Symbol)
	}
	assert.Contains(t, symbols, "add")
	assert.Contains(t, symbols, "other")
}

func TestPostProcessSplitsOversizedChunk(t *testing.T) {
	var b strings.Builder
	b.WriteString("func big() {\n")
	for i := 0; i < 300; i++ {
		b.WriteString("\tx := 1\n")
	}
	b.WriteString("}\n")

	cfg := DefaultConfig()
	s := newStructuralStrategy(cfg)
	chunks, err := s.chunk("go", []byte(b.String()))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "oversized chunk should be split into multiple windows")
	for _, c := range chunks {
		assert.Equal(t, "big", c.Symbol)
		assert.LessOrEqual(t, c.EndLine-c.StartLine+1, cfg.MaxChunkLines)
	}
}

func TestPostProcessDropsUndersizedChunks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkLines = 5
	s := newStructuralStrategy(cfg)
	chunks := s.postProcess([]ChunkCandidate{
		{StartLine: 1, EndLine: 2, Symbol: "tiny", Content: "a\nb"},
	}, []byte("a\nb\n"))
	assert.Empty(t, chunks)
}

func TestUnsupportedLanguageReturnsError(t *testing.T) {
	s := newStructuralStrategy(DefaultConfig())
	_, err := s.chunk("kotlin", []byte("fun main() {}"))
	assert.Error(t, err)
}
