package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sammcvicker/ember/internal/config"
	"github.com/sammcvicker/ember/internal/embedder"
	"github.com/sammcvicker/ember/internal/emberd"
)

// defaultIdleAfter is T_idle from the service protocol's timeout
// table: how long the server waits without a request before
// auto-terminating.
const defaultIdleAfter = 900 * time.Second

var (
	runSocketPath string
	runPIDPath    string
	runIdleAfter  time.Duration
)

// emberdRunCmd is the hidden entrypoint emberd.Start execs as a
// detached child: `<exe> emberd-run --socket ... --pid-file ... --root ...`.
// It is not meant to be invoked directly by a user.
var emberdRunCmd = &cobra.Command{
	Use:    "emberd-run",
	Hidden: true,
	RunE:   runEmberdRun,
}

func init() {
	emberdRunCmd.Flags().StringVar(&runSocketPath, "socket", "", "Unix socket path to listen on")
	emberdRunCmd.Flags().StringVar(&runPIDPath, "pid-file", "", "PID file to write after surviving startup")
	emberdRunCmd.Flags().DurationVar(&runIdleAfter, "idle-after", defaultIdleAfter, "shut down after this long without a request (0 disables)")
}

func runEmberdRun(cmd *cobra.Command, args []string) error {
	if runSocketPath == "" || runPIDPath == "" {
		return fmt.Errorf("emberd-run requires --socket and --pid-file")
	}

	cfg, err := config.Load(rootPath)
	if err != nil {
		return err
	}
	embCfg := cfg.GetEmbedderConfig()
	emb, err := embedder.New(embedder.Config{
		Backend:     embCfg.Backend,
		OllamaURL:   embCfg.OllamaURL,
		OllamaModel: embCfg.OllamaModel,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pf := emberd.NewPIDFile(runPIDPath)
	time.AfterFunc(100*time.Millisecond, func() {
		_ = pf.Write()
	})
	defer pf.Remove()

	server := emberd.NewServer(runSocketPath, emb, runIdleAfter)
	return server.ListenAndServe(ctx)
}
