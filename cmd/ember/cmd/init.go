package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sammcvicker/ember/internal/config"
	"github.com/sammcvicker/ember/internal/vcs"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .ember directory with default configuration",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := vcs.Open(rootPath); err != nil {
		return printErr(fmt.Errorf("ember init requires a git repository at %s: %w", rootPath, err))
	}

	configPath := filepath.Join(config.Dir(rootPath), "config")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(rootPath, config.DefaultConfig()); err != nil {
			return printErr(err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", config.Dir(rootPath))
	return nil
}
