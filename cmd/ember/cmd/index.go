package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sammcvicker/ember/internal/chunker"
	"github.com/sammcvicker/ember/internal/config"
	"github.com/sammcvicker/ember/internal/indexer"
	"github.com/sammcvicker/ember/internal/logging"
	"github.com/sammcvicker/ember/internal/storage"
	"github.com/sammcvicker/ember/internal/vcs"
)

var (
	indexForce   bool
	indexMode    string
	indexRev     string
	indexFilters []string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Sync the search index against a git tree",
	Long: `index brings the search index up to date with one of three
target trees:

  worktree (default)  the working tree, including uncommitted edits
  staged               the git index (staged changes)
  rev --rev=<ref>      a specific commit, tag, or branch

Re-running index after a small edit only reprocesses the files that
actually changed; --force-reindex walks every file regardless.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force-reindex", false, "reprocess every file regardless of what changed")
	indexCmd.Flags().StringVar(&indexMode, "mode", "worktree", "target tree: worktree, staged, or rev")
	indexCmd.Flags().StringVar(&indexRev, "rev", "", "commit, tag, or branch to index (required when --mode=rev)")
	indexCmd.Flags().StringArrayVar(&indexFilters, "path", nil, "glob pattern to restrict indexing to (repeatable)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mode, err := parseMode(indexMode, indexRev)
	if err != nil {
		return printErr(err)
	}

	cfg, err := config.Load(rootPath)
	if err != nil {
		return printErr(err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.FilePath = filepath.Join(config.Dir(rootPath), "logs", "ember.log")
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return printErr(err)
	}
	defer cleanup()

	repo, err := vcs.Open(rootPath)
	if err != nil {
		return printErr(err)
	}

	emb, embCleanup, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return printErr(err)
	}
	defer embCleanup()

	db, err := storage.Open(config.DBPath(rootPath), emb.Dim())
	if err != nil {
		return printErr(err)
	}
	defer db.Close()

	ch := chunker.New(chunker.DefaultConfig())
	idx := indexer.New(repo, db, emb, ch, config.ProjectID(rootPath), logger)

	progress := make(chan indexer.Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		drainProgress(cmd, progress)
	}()

	resp, runErr := idx.Run(ctx, indexer.Request{
		Mode:         mode,
		ForceReindex: indexForce,
		PathFilters:  indexFilters,
		ProgressSink: progress,
	})
	close(progress)
	<-done

	if runErr != nil {
		return printErr(runErr)
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s (incremental=%v): %d files indexed, %d failed, %d chunks created, %d updated, %d deleted\n",
		resp.RunID, resp.Incremental, resp.FilesIndexed, resp.FilesFailed, resp.ChunksCreated, resp.ChunksUpdated, resp.ChunksDeleted)
	return nil
}

func parseMode(mode, rev string) (indexer.Mode, error) {
	switch strings.ToLower(mode) {
	case "worktree", "":
		return indexer.WorktreeMode(), nil
	case "staged":
		return indexer.StagedMode(), nil
	case "rev":
		if rev == "" {
			return indexer.Mode{}, fmt.Errorf("--mode=rev requires --rev=<ref>")
		}
		return indexer.RevMode(rev), nil
	default:
		return indexer.Mode{}, fmt.Errorf("unknown --mode %q: want worktree, staged, or rev", mode)
	}
}

func drainProgress(cmd *cobra.Command, progress <-chan indexer.Progress) {
	if jsonOut {
		for range progress {
		}
		return
	}
	var lastPhase string
	start := time.Now()
	for p := range progress {
		if p.Err != nil {
			fmt.Fprintf(os.Stderr, "  warning: %s: %v\n", p.CurrentFile, p.Err)
			continue
		}
		if p.Phase != lastPhase {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", p.Phase)
			lastPhase = p.Phase
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\r  %d/%d %s", p.FilesProcessed, p.FilesTotal, p.CurrentFile)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\ndone in %s\n", time.Since(start).Round(time.Millisecond))
}
