package cmd

import (
	"fmt"
	"os"

	"noddymix/config"
	"noddymix/logger"
	"noddymix/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "noddymix",
	Short: "NoddyMix is a social music sharing service.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
