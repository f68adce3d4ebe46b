package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relaysync/internal/config"
	"relaysync/internal/db"
	"relaysync/internal/logger"
)

var (
	cfg        *config.Config
	debug      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "relaysync",
	Short:        "Mirror local directories to a remote receiver over HTTP",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}

		if err := logger.Init(debug, cfg.LogFile); err != nil {
			return err
		}

		// History is written by the commands that relay.
		historyCmds := map[string]bool{"watch": true, "seed": true}
		if historyCmds[cmd.Name()] && cfg.DBPath != "" {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.relaysync/config.yaml)")
}
