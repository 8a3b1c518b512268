package cmd

import (
	"context"
	"time"

	"noddymix/config"
	"noddymix/core/ranking"
	"noddymix/db"
	"noddymix/logger"
	"noddymix/repository"

	"github.com/spf13/cobra"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rebuild the song rank cache",
	Long: `Recompute the decayed popularity score of every song from the play log
and swap the rank cache. Meant to run from cron; the serve loop also
rebuilds hourly on its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		if err := db.ConnectDB(cfg); err != nil {
			return err
		}
		defer db.DB.Close()

		songRepo := repository.NewMySQLSongRepository(db.DB)
		engine := ranking.NewEngine(songRepo, nil, cfg.SongRankGravity,
			time.Duration(cfg.HeavyRotationDays)*24*time.Hour)

		if err := engine.Rebuild(context.Background()); err != nil {
			return err
		}
		logger.Info("Rank rebuild complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rankCmd)
}
