package cmd

import (
	"noddymix/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the NoddyMix API server",
	Long:  `Start the HTTP server serving the playlist, relationship, ranking and activity feed APIs.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
