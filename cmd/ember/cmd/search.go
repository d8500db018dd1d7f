package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sammcvicker/ember/internal/config"
	"github.com/sammcvicker/ember/internal/searcher"
	"github.com/sammcvicker/ember/internal/storage"
)

var (
	searchTopK int
	searchLang string
	searchPath string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index with a hybrid lexical + vector query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "topk", "n", 0, "maximum results to return (default: configured default_topk, normally 10)")
	searchCmd.Flags().StringVar(&searchLang, "lang", "", "restrict results to one detected language")
	searchCmd.Flags().StringVar(&searchPath, "path", "", "restrict results to paths matching this glob")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]

	cfg, err := config.Load(rootPath)
	if err != nil {
		return printErr(err)
	}

	topk := searchTopK
	if topk <= 0 {
		topk = cfg.GetSearchConfig().DefaultTopK
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

	s := searcher.New(db, emb, nil)
	results, err := s.Search(ctx, searcher.Query{
		Text:       query,
		TopK:       topk,
		LangFilter: searchLang,
		PathFilter: searchPath,
	})
	if err != nil {
		return printErr(err)
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s:%d-%d  %s  (score %.4f)\n", i+1, r.Path, r.StartLine, r.EndLine, r.Symbol, r.FusedScore)
	}
	return nil
}
