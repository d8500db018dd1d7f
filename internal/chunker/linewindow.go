package chunker

import "strings"

// lineWindowStrategy produces sliding windows of W lines with stride S,
// per spec.md §4.3. It is the fallback for unsupported languages, and
// is reused by the structural strategy to split oversized chunks.
type lineWindowStrategy struct {
	cfg Config
}

func newLineWindowStrategy(cfg Config) *lineWindowStrategy {
	return &lineWindowStrategy{cfg: cfg}
}

func (s *lineWindowStrategy) chunk(content []byte) []ChunkCandidate {
	if len(content) == 0 {
		return nil
	}
	lines := splitLines(content)

	window, stride := s.cfg.WindowLines, s.cfg.StrideLines
	var chunks []ChunkCandidate
	for start := 0; start < len(lines); start += stride {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, ChunkCandidate{
			StartLine: start + 1,
			EndLine:   end,
			Content:   strings.Join(lines[start:end], "\n"),
		})
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// splitOversized re-windows a single structural chunk that exceeds
// cfg.MaxChunkLines, preserving its symbol and reusing cfg's window
// parameters for the split pieces.
func splitOversized(chunk ChunkCandidate, lines []string, cfg Config) []ChunkCandidate {
	var result []ChunkCandidate
	window, stride := cfg.MaxChunkLines, cfg.StrideLines
	if stride <= 0 || stride > window {
		stride = window
	}

	total := chunk.EndLine - chunk.StartLine + 1
	for offset := 0; offset < total; offset += stride {
		start := chunk.StartLine + offset
		end := start + window - 1
		if end > chunk.EndLine {
			end = chunk.EndLine
		}
		result = append(result, ChunkCandidate{
			StartLine: start,
			EndLine:   end,
			Symbol:    chunk.Symbol,
			Content:   strings.Join(lines[start-1:end], "\n"),
		})
		if end == chunk.EndLine {
			break
		}
	}
	return result
}

func splitLines(content []byte) []string {
	return strings.Split(string(content), "\n")
}
