package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sammcvicker/ember/internal/config"
	"github.com/sammcvicker/ember/internal/emberd"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the long-lived embedding server",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the embedding server if it is not already running",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the embedding server",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the embedding server is running",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), emberd.TReady+5*time.Second)
	defer cancel()

	if err := emberd.Start(ctx, config.SocketPath(rootPath), config.PIDPath(rootPath), "--root", rootPath); err != nil {
		return printErr(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "emberd started")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := emberd.Stop(ctx, config.SocketPath(rootPath), config.PIDPath(rootPath)); err != nil {
		return printErr(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "emberd stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	client := emberd.NewClient(config.SocketPath(rootPath), 2*time.Second)
	if !client.IsRunning() {
		fmt.Fprintln(cmd.OutOrStdout(), "emberd is not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return printErr(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "emberd running: pid=%d model=%s dim=%d uptime=%ds\n",
		health.PID, health.Model, health.Dim, health.UptimeSec)
	return nil
}
