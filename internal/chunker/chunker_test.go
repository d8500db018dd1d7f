package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"main.go", "go"},
		{"script.py", "python"},
		{"app.js", "javascript"},
		{"component.tsx", "typescript"},
		{"lib.rs", "rust"},
		{"Server.java", "java"},
		{"helper.rb", "ruby"},
		{"main.c", "c"},
		{"main.cpp", "cpp"},
		{"Program.cs", "csharp"},
		{"script.sh", "bash"},
		{"Dockerfile", "dockerfile"},
		{"Makefile", "make"},
		{"unknown.xyz", ""},
		{"README.md", ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.filename))
		})
	}
}

func TestIsIndexableFile(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"main.go", true},
		{"script.py", true},
		{"app.ts", true},
		{"README.md", false},
		{"data.json", false},
		{"style.css", false},
		{".hidden.go", false},
		{"file.min.js", false},
		{"types.d.ts", false},
		{"image.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIndexableFile(tt.filename))
		})
	}
}

func TestNewDefaultsZeroFields(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, 120, c.cfg.WindowLines)
	assert.Equal(t, 100, c.cfg.StrideLines)
}

func TestChunkFallsBackForUnsupportedLanguage(t *testing.T) {
	c := New(DefaultConfig())
	chunks, err := c.Chunk("main.kt", "kotlin", []byte("fun main() {}\n"))
	assert.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Symbol)
}

func TestChunkOfEmptyContentYieldsNothing(t *testing.T) {
	c := New(DefaultConfig())
	chunks, err := c.Chunk("main.go", "go", []byte{})
	assert.NoError(t, err)
	assert.Empty(t, chunks)
}
