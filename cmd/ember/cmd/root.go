// Package cmd implements the ember command-line shell: a thin cobra
// layer over the internal/indexer, internal/searcher, and
// internal/emberd core packages.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sammcvicker/ember/internal/config"
	"github.com/sammcvicker/ember/internal/embedder"
	"github.com/sammcvicker/ember/internal/emberd"
)

var (
	rootPath string
	jsonOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "ember",
	Short: "Local, git-aware hybrid lexical + vector code search",
	Long: `ember indexes a git working tree into a local hybrid lexical and
vector search index, and answers queries against it without ever
leaving the machine.

Typical workflow:
  ember init
  ember index
  ember search "retry queue with exponential backoff"`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cwd, _ := os.Getwd()
	rootCmd.PersistentFlags().StringVar(&rootPath, "root", cwd, "repository root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(emberdRunCmd)
}

// hinter is implemented by every embererr type; surfacing it turns a
// bare error into actionable CLI output.
type hinter interface {
	Hint() string
}

func printErr(err error) error {
	fmt.Fprintln(os.Stderr, "error:", err)
	if h, ok := err.(hinter); ok {
		if hint := h.Hint(); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
	}
	return err
}

// buildEmbedder resolves the configured embedder, preferring the
// long-lived emberd process when the config asks for server mode and
// one is already running; it never spawns one implicitly (that's
// `ember daemon start`'s job).
func buildEmbedder(ctx context.Context, cfg *config.Config) (embedder.Embedder, func(), error) {
	embCfg := cfg.GetEmbedderConfig()
	noop := func() {}

	if embCfg.UseServer {
		client := emberd.NewClient(config.SocketPath(rootPath), 0)
		if client.IsRunning() {
			ce, err := emberd.NewClientEmbedder(ctx, client)
			if err == nil {
				return ce, noop, nil
			}
			fmt.Fprintln(os.Stderr, "warning: emberd server unreachable, falling back to in-process embedder:", err)
		} else {
			fmt.Fprintln(os.Stderr, "warning: use_server is set but no emberd is running (start one with `ember daemon start`); falling back to in-process embedder")
		}
	}

	emb, err := embedder.New(embedder.Config{
		Backend:     embCfg.Backend,
		OllamaURL:   embCfg.OllamaURL,
		OllamaModel: embCfg.OllamaModel,
	})
	if err != nil {
		return nil, noop, err
	}
	return emb, noop, nil
}
