package indexer

import "testing"

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.go", "a.go", true},
		{"**/*.go", "pkg/sub/a.go", true},
		{"*.go", "a.go", true},
		{"*.go", "pkg/a.go", false},
		{"pkg/*.go", "pkg/a.go", true},
		{"pkg/*.go", "pkg/sub/a.go", false},
		{"pkg/**", "pkg/sub/a.go", true},
		{"pkg/**", "other/a.go", false},
		{"a?.go", "ab.go", true},
		{"a?.go", "abc.go", false},
		{"**", "any/depth/file.txt", true},
	}
	for _, c := range cases {
		got := matchGlob(c.pattern, c.path)
		if got != c.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestMatchAnyEmptyPatternsMatchesEverything(t *testing.T) {
	if !matchAny(nil, "anything.go") {
		t.Error("expected empty pattern list to match everything")
	}
}

func TestMatchAnyMatchesAnyPattern(t *testing.T) {
	patterns := []string{"*.md", "**/*.go"}
	if !matchAny(patterns, "pkg/a.go") {
		t.Error("expected a.go to match **/*.go")
	}
	if matchAny(patterns, "pkg/a.py") {
		t.Error("did not expect a.py to match")
	}
}
