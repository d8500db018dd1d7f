// Package indexer implements diff-driven synchronization between a
// git tree and the storage engine: it decides what changed since the
// last run, chunks and embeds the changed files, and writes the
// result in the ordering the storage engine requires.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sammcvicker/ember/internal/chunker"
	"github.com/sammcvicker/ember/internal/embedder"
	"github.com/sammcvicker/ember/internal/embererr"
	"github.com/sammcvicker/ember/internal/hasher"
	"github.com/sammcvicker/ember/internal/storage"
	"github.com/sammcvicker/ember/internal/vcs"
)

// ModeKind selects which tree an indexing run targets.
type ModeKind int

const (
	// Worktree indexes the current working-tree bytes, including
	// unstaged and untracked-but-not-ignored files.
	Worktree ModeKind = iota
	// Staged indexes the contents of the git index (the staging area).
	Staged
	// Rev indexes the tree of an arbitrary resolvable revision.
	Rev
)

// Mode is the target-tree selector: Worktree, Staged, or Rev(ref).
type Mode struct {
	Kind ModeKind
	Ref  string // only meaningful when Kind == Rev
}

// WorktreeMode targets the working tree.
func WorktreeMode() Mode { return Mode{Kind: Worktree} }

// StagedMode targets the git index.
func StagedMode() Mode { return Mode{Kind: Staged} }

// RevMode targets the tree of the commit ref resolves to.
func RevMode(ref string) Mode { return Mode{Kind: Rev, Ref: ref} }

func (m Mode) String() string {
	switch m.Kind {
	case Worktree:
		return "worktree"
	case Staged:
		return "staged"
	case Rev:
		return fmt.Sprintf("rev(%s)", m.Ref)
	default:
		return "unknown"
	}
}

// Request is one indexing run's input.
type Request struct {
	Mode         Mode
	ForceReindex bool
	// PathFilters are glob patterns (repository-relative); an empty
	// list applies no additional filter.
	PathFilters []string
	// ProgressSink receives progress updates if non-nil. The indexer
	// never blocks indefinitely on a full channel: sends are
	// best-effort via a non-blocking select.
	ProgressSink chan<- Progress
}

// Progress reports one step of an indexing run.
type Progress struct {
	Phase          string
	FilesTotal     int
	FilesProcessed int
	CurrentFile    string
	Err            error
}

// Response is the outcome of one indexing run.
type Response struct {
	RunID         string
	Incremental   bool
	FilesIndexed  int
	FilesFailed   int
	ChunksCreated int
	ChunksUpdated int
	ChunksDeleted int
}

// Indexer orchestrates the VCS probe, the chunker, the embedder, and
// the storage engine into the pipeline described in Run.
type Indexer struct {
	repo      *vcs.Repo
	db        *storage.DB
	embedder  embedder.Embedder
	chunker   *chunker.Chunker
	projectID string
	log       *slog.Logger
}

// New builds an Indexer. logger may be nil, in which case a discard
// logger is used.
func New(repo *vcs.Repo, db *storage.DB, emb embedder.Embedder, ch *chunker.Chunker, projectID string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	return &Indexer{repo: repo, db: db, embedder: emb, chunker: ch, projectID: projectID, log: logger}
}

// Run executes the 10-step indexing pipeline and returns its summary.
func (idx *Indexer) Run(ctx context.Context, req Request) (Response, error) {
	runID := uuid.New().String()
	resp := Response{RunID: runID}
	log := idx.log.With("run_id", runID, "mode", req.Mode.String())

	// Step 1: target tree.
	targetTree, err := idx.resolveTargetTree(req.Mode)
	if err != nil {
		return resp, err
	}
	idx.emit(req, Progress{Phase: "target-tree"})

	// Step 2: fingerprint gate.
	currentFP := idx.embedder.Fingerprint()
	indexedFP, _, err := idx.db.GetMeta(storage.MetaModelFP)
	if err != nil {
		return resp, err
	}
	if indexedFP != "" && indexedFP != currentFP && !req.ForceReindex {
		log.Warn("embedder fingerprint mismatch; skipping run to avoid mixed-fingerprint output",
			"indexed_fingerprint", indexedFP, "current_fingerprint", currentFP)
		return resp, &embererr.FingerprintMismatchError{Indexed: indexedFP, Current: currentFP}
	}

	// Step 3: early out.
	lastTreeSHA, _, err := idx.db.GetMeta(storage.MetaLastTreeSHA)
	if err != nil {
		return resp, err
	}
	if lastTreeSHA == targetTree && !req.ForceReindex {
		resp.Incremental = true
		return resp, nil
	}

	// Step 4: work set.
	workSet, deletionSet, err := idx.computeWorkSet(ctx, lastTreeSHA, targetTree, req.ForceReindex)
	if err != nil {
		return resp, err
	}
	diffBased := lastTreeSHA != "" && !req.ForceReindex
	resp.Incremental = diffBased

	// Step 5: file filter.
	workSet = idx.filterPaths(workSet, req.PathFilters)

	idx.emit(req, Progress{Phase: "scanning", FilesTotal: len(workSet)})

	// Steps 6-7: preload + per-file pipeline.
	preloaded := false
	for i, path := range workSet {
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		default:
		}

		idx.emit(req, Progress{Phase: "indexing", FilesTotal: len(workSet), FilesProcessed: i, CurrentFile: path})

		created, updated, failed, err := idx.processFile(ctx, req, path, targetTree, &preloaded)
		if err != nil {
			return resp, err
		}
		if failed {
			resp.FilesFailed++
			continue
		}
		resp.FilesIndexed++
		resp.ChunksCreated += created
		resp.ChunksUpdated += updated
	}

	// Step 8: deletions.
	idx.emit(req, Progress{Phase: "deleting", FilesTotal: len(deletionSet)})
	for _, path := range deletionSet {
		n, err := idx.db.CountChunksByPath(path)
		if err != nil {
			return resp, err
		}
		if err := idx.db.DeleteChunksByPath(path); err != nil {
			return resp, err
		}
		resp.ChunksDeleted += n
	}

	// Untouched files keep their prior tree_sha unless bumped here: a
	// diff-based run only rewrites tree_sha for paths it actually
	// reprocessed, so every row still left at lastTreeSHA belongs to a
	// file that survived unchanged and must be promoted to targetTree
	// before the final sweep, or it would be mistaken for stale.
	if diffBased {
		if _, err := idx.db.BumpUnchangedTreeSHA(lastTreeSHA, targetTree); err != nil {
			return resp, err
		}
	}

	// Step 9: metadata.
	if err := idx.db.SetMeta(storage.MetaLastTreeSHA, targetTree); err != nil {
		return resp, err
	}
	if err := idx.db.SetMeta(storage.MetaModelFP, currentFP); err != nil {
		return resp, err
	}
	if err := idx.db.SetMeta(storage.MetaLastSyncMode, req.Mode.String()); err != nil {
		return resp, err
	}

	// Step 10: final sweep.
	idx.emit(req, Progress{Phase: "sweeping"})
	swept, err := idx.db.FinalSweep(targetTree)
	if err != nil {
		return resp, err
	}
	resp.ChunksDeleted += int(swept)

	return resp, nil
}

func (idx *Indexer) resolveTargetTree(mode Mode) (string, error) {
	switch mode.Kind {
	case Worktree:
		return idx.repo.WorktreeTree()
	case Staged:
		return idx.repo.StagedTree()
	case Rev:
		return idx.repo.ResolveRev(mode.Ref)
	default:
		return "", fmt.Errorf("indexer: unknown mode kind %d", mode.Kind)
	}
}

// computeWorkSet returns (workSet, deletionSet). workSet is every
// indexable path to (re)chunk; deletionSet is every path whose chunks
// should be removed outright.
func (idx *Indexer) computeWorkSet(ctx context.Context, lastTreeSHA, targetTree string, force bool) ([]string, []string, error) {
	if lastTreeSHA == "" || force {
		paths, err := idx.repo.ListFiles(targetTree)
		if err != nil {
			return nil, nil, err
		}
		return paths, nil, nil
	}

	changes, err := idx.repo.Diff(ctx, lastTreeSHA, targetTree)
	if err != nil {
		return nil, nil, err
	}

	var workSet, deletionSet []string
	for _, c := range changes {
		switch c.Status {
		case vcs.Added, vcs.Modified:
			workSet = append(workSet, c.Path)
		case vcs.Renamed, vcs.Copied:
			workSet = append(workSet, c.Path)
			if c.Status == vcs.Renamed {
				deletionSet = append(deletionSet, c.OldPath)
			}
		case vcs.Deleted:
			deletionSet = append(deletionSet, c.Path)
		}
	}
	return workSet, deletionSet, nil
}

// filterPaths applies the extension whitelist, ignore rules, and any
// caller-supplied path_filters, in that order.
func (idx *Indexer) filterPaths(paths []string, pathFilters []string) []string {
	var out []string
	for _, p := range paths {
		if !chunker.IsIndexableFile(p) {
			continue
		}
		if ignored, err := idx.repo.IsIgnored(p); err == nil && ignored {
			continue
		}
		if !matchAny(pathFilters, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// processFile runs step 7 (a-e) for one path. preloaded tracks whether
// the "loading model" phase has already fired this run.
func (idx *Indexer) processFile(ctx context.Context, req Request, path, targetTree string, preloaded *bool) (created, updated int, failed bool, err error) {
	content, readErr := idx.readFile(req.Mode, targetTree, path)
	if readErr != nil {
		idx.log.Warn("skipping file: read failed", "path", path, "error", readErr)
		return 0, 0, true, nil
	}

	text := toValidUTF8(content)
	lang := chunker.DetectLanguage(path)

	candidates, chunkErr := idx.chunker.Chunk(path, lang, []byte(text))
	if chunkErr != nil {
		return 0, 0, true, nil
	}
	if len(candidates) == 0 {
		if len(content) > 0 {
			// Zero chunks from a non-empty file is a soft failure:
			// existing chunks for path are left untouched.
			return 0, 0, true, nil
		}
		// An empty file legitimately chunks to nothing; clear any
		// stale rows left from when it had content.
		if err := idx.db.DeleteStalePathChunks(path, targetTree, nil); err != nil {
			return 0, 0, false, err
		}
		return 0, 0, false, nil
	}

	fileHash := hasher.Hash(content)

	rows := make([]storage.Chunk, len(candidates))
	keepHashes := make([]string, len(candidates))

	for i, c := range candidates {
		contentHash := hasher.Hash([]byte(c.Content))
		hashStr := contentHash.String()
		rows[i] = storage.Chunk{
			ContentHash: contentHash,
			ProjectID:   idx.projectID,
			Path:        path,
			Lang:        lang,
			Symbol:      c.Symbol,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			Content:     c.Content,
			FileHash:    fileHash,
			TreeSHA:     targetTree,
		}
		keepHashes[i] = hashStr
	}

	// A hash already holding a stored vector needs no re-embed: a
	// rename or copy carries its content_hash over unchanged, so the
	// existing vector is reused and only its path/lang columns are
	// refreshed below. A forced reindex reuses nothing and re-embeds
	// every chunk, so no vector from an earlier embedder survives it.
	storedVectors := map[string][]float32{}
	if !req.ForceReindex {
		storedVectors, err = idx.db.GetVectorsByHash(keepHashes)
		if err != nil {
			return 0, 0, false, err
		}
	}

	var embedIdx []int
	var embedTexts []string
	for i, c := range candidates {
		if _, ok := storedVectors[keepHashes[i]]; ok {
			continue
		}
		embedIdx = append(embedIdx, i)
		embedTexts = append(embedTexts, c.Content)
	}

	vectorMap := make(map[string][]float32, len(candidates))
	for hash, vec := range storedVectors {
		vectorMap[hash] = vec
	}

	if len(embedTexts) > 0 {
		if !*preloaded {
			idx.emit(req, Progress{Phase: "loading-model", CurrentFile: path})
			*preloaded = true
		}

		vectors, embedErr := idx.embedder.Embed(ctx, embedTexts)
		if embedErr != nil {
			return 0, 0, false, &embererr.EmbedderFailureError{Detail: fmt.Sprintf("embedding %s", path), Err: embedErr}
		}
		if len(vectors) != len(embedTexts) {
			return 0, 0, false, &embererr.EmbedderFailureError{Detail: fmt.Sprintf("embedder returned %d vectors for %d chunks in %s", len(vectors), len(embedTexts), path)}
		}
		for j, i := range embedIdx {
			vectorMap[keepHashes[i]] = vectors[j]
		}
	}

	pathMap := make(map[string]string, len(candidates))
	langMap := make(map[string]string, len(candidates))
	for _, h := range keepHashes {
		pathMap[h] = path
		langMap[h] = lang
	}

	existing, err := idx.db.GetChunksByHash(keepHashes)
	if err != nil {
		return 0, 0, false, err
	}
	for _, h := range keepHashes {
		if _, ok := existing[h]; ok {
			updated++
		} else {
			created++
		}
	}

	if err := idx.db.UpsertChunks(rows); err != nil {
		return 0, 0, false, err
	}
	if err := idx.db.UpsertVectors(vectorMap, pathMap, langMap); err != nil {
		return 0, 0, false, err
	}
	if err := idx.db.DeleteStalePathChunks(path, targetTree, keepHashes); err != nil {
		return 0, 0, false, err
	}

	return created, updated, false, nil
}

func (idx *Indexer) readFile(mode Mode, targetTree, path string) ([]byte, error) {
	if mode.Kind == Worktree {
		return os.ReadFile(filepath.Join(idx.repo.Root(), path))
	}
	return idx.repo.ReadFile(targetTree, path)
}

func (idx *Indexer) emit(req Request, p Progress) {
	if req.ProgressSink == nil {
		return
	}
	select {
	case req.ProgressSink <- p:
	default:
	}
}

// toValidUTF8 decodes b as UTF-8, substituting the replacement
// character for invalid byte sequences rather than rejecting the file.
func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
