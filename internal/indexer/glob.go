package indexer

import "strings"

// matchGlob reports whether path (repository-relative, forward-slash
// separated) matches pattern under the spec's glob semantics: `**`
// matches any number of path segments (including zero), `*` matches
// exactly one segment, `?` matches exactly one character within a
// segment. This generalizes the teacher's `doubleStarMatch`, which
// only handled a leading or trailing `**/`/`/ **` and fell through to
// `filepath.Match` (no `**` support) for everything else; here `**`
// can appear anywhere in the pattern and the match is segment-aware
// throughout.
func matchGlob(pattern, path string) bool {
	return matchSegments(splitSegments(pattern), splitSegments(path))
}

func splitSegments(s string) []string {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pattern, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	if !matchSegment(pattern[0], path[0]) {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

// matchSegment matches one path segment against one pattern segment,
// where `*` matches any run of characters and `?` matches exactly one.
func matchSegment(pattern, segment string) bool {
	return matchSegmentRunes([]rune(pattern), []rune(segment))
}

func matchSegmentRunes(pattern, segment []rune) bool {
	if len(pattern) == 0 {
		return len(segment) == 0
	}
	switch pattern[0] {
	case '*':
		if matchSegmentRunes(pattern[1:], segment) {
			return true
		}
		if len(segment) == 0 {
			return false
		}
		return matchSegmentRunes(pattern, segment[1:])
	case '?':
		if len(segment) == 0 {
			return false
		}
		return matchSegmentRunes(pattern[1:], segment[1:])
	default:
		if len(segment) == 0 || pattern[0] != segment[0] {
			return false
		}
		return matchSegmentRunes(pattern[1:], segment[1:])
	}
}

// matchAny reports whether path matches any of patterns; an empty
// patterns list matches everything (no filter applied).
func matchAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchGlob(p, path) {
			return true
		}
	}
	return false
}
