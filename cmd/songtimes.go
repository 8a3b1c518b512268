package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"noddymix/config"
	"noddymix/db"
	"noddymix/logger"
	"noddymix/repository"

	"github.com/spf13/cobra"
)

var songtimesCmd = &cobra.Command{
	Use:   "songtimes",
	Short: "Fill in missing song durations",
	Long: `Probe the audio of every song whose duration is unknown and record the
length in seconds. Requires ffprobe and network reach to the asset
store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		if err := db.ConnectDB(cfg); err != nil {
			return err
		}
		defer db.DB.Close()

		songRepo := repository.NewMySQLSongRepository(db.DB)
		songs, err := songRepo.SongsMissingLength()
		if err != nil {
			return err
		}

		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}

		filled := 0
		for _, song := range songs {
			if song.AudioPath == "" {
				continue
			}
			url := fmt.Sprintf("%s://%s/%s/%s", scheme, cfg.MinioEndpoint, cfg.MinioBucket, song.AudioPath)
			length, err := probeDuration(cmd.Context(), cfg.FFprobePath, url)
			if err != nil {
				logger.Warn("Failed to probe song duration",
					logger.Int64("songID", song.ID), logger.ErrorField(err))
				continue
			}
			if err := songRepo.UpdateSongLength(song.ID, length); err != nil {
				return err
			}
			filled++
		}

		logger.Info("Song durations filled",
			logger.Int("probed", len(songs)), logger.Int("filled", filled))
		return nil
	},
}

// probeDuration asks ffprobe for the duration of the audio at url,
// rounded down to whole seconds.
func probeDuration(ctx context.Context, ffprobe, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		url,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", url, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", out, err)
	}
	return int(seconds), nil
}

func init() {
	rootCmd.AddCommand(songtimesCmd)
}
