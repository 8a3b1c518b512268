package ranking

import (
	"context"
	"errors"
	"math"
	"time"

	"noddymix/core/activity"
	"noddymix/logger"
	"noddymix/metrics"
	"noddymix/model"
	"noddymix/repository"
)

// ErrSongNotFound indicates a play was logged against a song that does
// not exist.
var ErrSongNotFound = errors.New("song not found")

// Engine maintains the time-decayed popularity scores. Scores live in a
// rebuildable cache fed by the play log; the lifetime play counter on the
// song row is bookkeeping for display, not an input to ranking.
type Engine struct {
	songs    repository.SongRepository
	notifier activity.Notifier
	gravity  float64
	window   time.Duration

	now func() time.Time
}

// NewEngine creates a ranking Engine. window is how far back plays count
// toward a song's score. notifier may be nil, which drops play
// notifications; maintenance commands rebuild ranks without one.
func NewEngine(songs repository.SongRepository, notifier activity.Notifier, gravity float64, window time.Duration) *Engine {
	return &Engine{
		songs:    songs,
		notifier: notifier,
		gravity:  gravity,
		window:   window,
		now:      time.Now,
	}
}

// Score computes the decayed popularity score for a song with the given
// play count whose latest play was at lastPlay. The two-hour floor keeps
// brand-new plays from dividing by near zero.
func (e *Engine) Score(plays int64, now, lastPlay time.Time) float64 {
	hours := now.Sub(lastPlay).Hours()
	if hours < 0 {
		hours = 0
	}
	return float64(plays) / math.Pow(hours+2.0, e.gravity)
}

// LogPlay records one play of a song: a play log row and the lifetime
// counter move in one transaction. The actor may be anonymous (ID 0).
func (e *Engine) LogPlay(ctx context.Context, actorID, songID int64) error {
	song, err := e.songs.GetSongByID(songID)
	if err != nil {
		return err
	}
	if song == nil {
		return ErrSongNotFound
	}

	tx, err := e.songs.BeginTx()
	if err != nil {
		return err
	}
	defer e.songs.RollbackTx(tx)

	if _, err := e.songs.CreateSongPlayWithTx(tx, songID, e.now()); err != nil {
		return err
	}
	if err := e.songs.IncrementNumPlaysWithTx(tx, songID); err != nil {
		return err
	}
	if err := e.songs.CommitTx(tx); err != nil {
		return err
	}

	metrics.SongPlays.Inc()
	if e.notifier != nil {
		e.notifier.Record(ctx, actorID, "played", model.Ref{}, model.Ref{Kind: model.RefSong, ID: songID})
	}
	return nil
}

// Rebuild recomputes the rank cache from the play log. Only plays inside
// the window count; songs with no plays in the window drop out of the
// cache entirely.
func (e *Engine) Rebuild(ctx context.Context) error {
	now := e.now()
	stats, err := e.songs.PlayStatsSince(now.Add(-e.window))
	if err != nil {
		return err
	}

	ranks := make([]model.SongRank, 0, len(stats))
	for _, stat := range stats {
		ranks = append(ranks, model.SongRank{
			SongID: stat.SongID,
			Score:  e.Score(stat.Plays, now, stat.LastPlay),
		})
	}

	if err := e.songs.ReplaceRanks(ranks); err != nil {
		return err
	}
	metrics.RankRebuilds.Inc()
	logger.Info("Rebuilt song rank cache", logger.Int("songs", len(ranks)))
	return nil
}

// HeavyRotation lists the top-scored songs from the rank cache, best
// first.
func (e *Engine) HeavyRotation(ctx context.Context, limit int) ([]repository.RankedSong, error) {
	return e.songs.TopRanked(limit)
}
