// Package searcher implements hybrid lexical + vector retrieval: two
// candidate pools run concurrently, are combined by Reciprocal Rank
// Fusion, and are hydrated back into full chunk rows.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sammcvicker/ember/internal/embedder"
	"github.com/sammcvicker/ember/internal/embererr"
	"github.com/sammcvicker/ember/internal/storage"
)

// kRRF is the Reciprocal Rank Fusion constant, fixed at the standard
// value used throughout the corpus's own hybrid-search code.
const kRRF = 60.0

// minCandidates is the floor on how many candidates each pool asks
// for, regardless of topk.
const minCandidates = 100

// Query is one search request.
type Query struct {
	Text       string
	TopK       int
	LangFilter string
	PathFilter string
}

// Result is one ranked, hydrated search hit.
type Result struct {
	ContentHash string
	Path        string
	Lang        string
	Symbol      string
	StartLine   int
	EndLine     int
	Content     string
	LexicalRank int     // -1 if the lexical pool did not return this candidate
	VectorRank  int     // -1 if the vector pool did not return this candidate
	// VectorDistance is the cosine distance from the vector pool
	// (0 if the candidate was lexical-only).
	VectorDistance float64
	FusedScore     float64
}

// Searcher runs the hybrid search pipeline against one storage engine
// and embedder pair.
type Searcher struct {
	db       *storage.DB
	embedder embedder.Embedder
	log      *slog.Logger
}

// New builds a Searcher.
func New(db *storage.DB, emb embedder.Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{db: db, embedder: emb, log: logger}
}

// Search executes the 7-step pipeline: validate, embed, fan out to the
// lexical and vector candidate pools concurrently, fuse by RRF,
// hydrate, score, and rank. Returns at most query.TopK results.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := validate(q); err != nil {
		return nil, err
	}

	queryVec, err := s.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, &embererr.EmbedderFailureError{Detail: "embedding query", Err: err}
	}
	if len(queryVec) != 1 {
		return nil, &embererr.EmbedderFailureError{Detail: fmt.Sprintf("embedder returned %d vectors for 1 query text", len(queryVec))}
	}

	kCand := q.TopK * 2
	if kCand < minCandidates {
		kCand = minCandidates
	}

	var lexResults []storage.LexicalResult
	var vecResults []storage.VectorResult

	var g errgroup.Group
	g.Go(func() error {
		r, err := s.db.SearchLexical(q.Text, kCand, q.PathFilter, q.LangFilter)
		if err != nil {
			return err
		}
		lexResults = r
		return nil
	})
	g.Go(func() error {
		r, err := s.db.SearchVector(queryVec[0], kCand, q.PathFilter, q.LangFilter)
		if err != nil {
			return err
		}
		vecResults = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(lexResults, vecResults)

	sort.Slice(fused, func(i, j int) bool { return fused[i].score > fused[j].score })

	top := fused
	if len(top) > q.TopK*4 {
		// Hydrate only a generous superset; exact final top-N ranking
		// (with path/line tiebreaks, which require the hydrated row) is
		// applied after hydration below.
		top = top[:q.TopK*4]
	}

	hashes := make([]string, len(top))
	for i, f := range top {
		hashes[i] = f.contentHash
	}
	rows, err := s.db.GetChunksByHash(hashes)
	if err != nil {
		return nil, err
	}

	var missing []string
	results := make([]Result, 0, len(top))
	for _, f := range top {
		row, ok := rows[f.contentHash]
		if !ok {
			if len(missing) < 5 {
				missing = append(missing, f.contentHash)
			}
			continue
		}
		results = append(results, Result{
			ContentHash:    f.contentHash,
			Path:           row.Path,
			Lang:           row.Lang,
			Symbol:         row.Symbol,
			StartLine:      row.StartLine,
			EndLine:        row.EndLine,
			Content:        row.Content,
			LexicalRank:    f.lexRank,
			VectorRank:     f.vecRank,
			VectorDistance: f.vecDistance,
			FusedScore:     f.score,
		})
	}
	if len(missing) > 0 {
		s.log.Warn("search: candidates missing from storage", "count", len(missing), "hashes", missing)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return results[i].StartLine < results[j].StartLine
	})

	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

func validate(q Query) error {
	if q.TopK <= 0 {
		return &embererr.InvalidQueryError{Reason: "topk must be a positive integer"}
	}
	if strings.TrimSpace(q.Text) == "" {
		return &embererr.InvalidQueryError{Reason: "query text must be non-empty"}
	}
	return nil
}

// fusedCandidate is one candidate's RRF score plus the per-pool rank
// metadata needed to populate Result.
type fusedCandidate struct {
	contentHash string
	lexRank     int
	vecRank     int
	vecDistance float64
	score       float64
}

// fuse implements unweighted Reciprocal Rank Fusion: each ranker that
// returned a candidate contributes 1/(kRRF+rank); rankers that did not
// return it contribute nothing. This is deliberately unweighted: there
// is no alpha term splitting lexical vs. vector contribution, so both
// pools count equally.
func fuse(lex []storage.LexicalResult, vec []storage.VectorResult) []fusedCandidate {
	byHash := make(map[string]*fusedCandidate)

	for rank, r := range lex {
		c := byHash[r.ContentHash]
		if c == nil {
			c = &fusedCandidate{contentHash: r.ContentHash, lexRank: -1, vecRank: -1}
			byHash[r.ContentHash] = c
		}
		c.lexRank = rank
		c.score += 1.0 / (kRRF + float64(rank))
	}
	for rank, r := range vec {
		c := byHash[r.ContentHash]
		if c == nil {
			c = &fusedCandidate{contentHash: r.ContentHash, lexRank: -1, vecRank: -1}
			byHash[r.ContentHash] = c
		}
		c.vecRank = rank
		c.vecDistance = r.Distance
		c.score += 1.0 / (kRRF + float64(rank))
	}

	out := make([]fusedCandidate, 0, len(byHash))
	for _, c := range byHash {
		out = append(out, *c)
	}
	return out
}
