package ranking

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"noddymix/model"
	"noddymix/repository"
)

type fakeNotifier struct {
	verbs []string
}

func (n *fakeNotifier) Record(ctx context.Context, actorID int64, verb string, object, target model.Ref) {
	n.verbs = append(n.verbs, verb)
}

type fakeSongRepo struct {
	songs map[int64]*model.Song
	plays []model.SongPlay
	ranks []model.SongRank
}

func (r *fakeSongRepo) BeginTx() (*sql.Tx, error) { return nil, nil }
func (r *fakeSongRepo) RollbackTx(tx *sql.Tx)     {}
func (r *fakeSongRepo) CommitTx(tx *sql.Tx) error { return nil }

func (r *fakeSongRepo) CreateSong(*model.Song) (int64, error) { return 0, nil }
func (r *fakeSongRepo) GetSongByID(id int64) (*model.Song, error) {
	return r.songs[id], nil
}
func (r *fakeSongRepo) UpdateSongAudio(int64, string) error               { return nil }
func (r *fakeSongRepo) UpdateSongLength(int64, int) error                 { return nil }
func (r *fakeSongRepo) SongsMissingLength() ([]*model.Song, error)        { return nil, nil }
func (r *fakeSongRepo) DeleteSongWithTx(*sql.Tx, int64) error             { return nil }
func (r *fakeSongRepo) NewReleases(time.Time, int) ([]*model.Song, error) { return nil, nil }
func (r *fakeSongRepo) CreateArtist(*model.Artist) (int64, error)         { return 0, nil }
func (r *fakeSongRepo) GetArtistByName(string) (*model.Artist, error)     { return nil, nil }
func (r *fakeSongRepo) CreateAlbum(*model.Album) (int64, error)           { return 0, nil }
func (r *fakeSongRepo) GetAlbumByID(int64) (*model.Album, error)          { return nil, nil }
func (r *fakeSongRepo) UpdateAlbumArt(int64, string) error                { return nil }

func (r *fakeSongRepo) IncrementNumPlaysWithTx(tx *sql.Tx, songID int64) error {
	r.songs[songID].NumPlays++
	return nil
}

func (r *fakeSongRepo) CreateSongPlayWithTx(tx *sql.Tx, songID int64, playedAt time.Time) (int64, error) {
	r.plays = append(r.plays, model.SongPlay{SongID: songID, DateAdded: playedAt})
	return int64(len(r.plays)), nil
}

func (r *fakeSongRepo) PlayStatsSince(since time.Time) ([]repository.PlayStats, error) {
	agg := make(map[int64]*repository.PlayStats)
	for _, p := range r.plays {
		if p.DateAdded.Before(since) {
			continue
		}
		s, ok := agg[p.SongID]
		if !ok {
			s = &repository.PlayStats{SongID: p.SongID}
			agg[p.SongID] = s
		}
		s.Plays++
		if p.DateAdded.After(s.LastPlay) {
			s.LastPlay = p.DateAdded
		}
	}
	out := make([]repository.PlayStats, 0, len(agg))
	for _, s := range agg {
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeSongRepo) ReplaceRanks(ranks []model.SongRank) error {
	r.ranks = ranks
	return nil
}

func (r *fakeSongRepo) TopRanked(limit int) ([]repository.RankedSong, error) {
	out := make([]repository.RankedSong, 0, len(r.ranks))
	for _, rank := range r.ranks {
		out = append(out, repository.RankedSong{Song: r.songs[rank.SongID], Score: rank.Score})
	}
	// Highest score first; ties go to the newer song ID.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score ||
				(out[j].Score == out[i].Score && out[j].Song.ID > out[i].Song.ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestEngine(window time.Duration) (*Engine, *fakeSongRepo, *fakeNotifier, time.Time) {
	repo := &fakeSongRepo{songs: map[int64]*model.Song{
		1: {ID: 1, Title: "kukere"},
		2: {ID: 2, Title: "oliver twist"},
	}}
	notifier := &fakeNotifier{}
	engine := NewEngine(repo, notifier, 1.8, window)
	now := time.Date(2014, 5, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, repo, notifier, now
}

func TestScoreDecay(t *testing.T) {
	engine, _, _, now := newTestEngine(7 * 24 * time.Hour)

	// 10 plays, last one two hours ago: 10 / (2+2)^1.8.
	got := engine.Score(10, now, now.Add(-2*time.Hour))
	want := 10.0 / math.Pow(4.0, 1.8)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want %v", got, want)
	}

	// More recent plays outrank an equal count of older ones.
	fresh := engine.Score(5, now, now.Add(-time.Hour))
	stale := engine.Score(5, now, now.Add(-48*time.Hour))
	if fresh <= stale {
		t.Errorf("fresh score %v not above stale score %v", fresh, stale)
	}

	// A last play in the future clamps to the two-hour floor.
	clamped := engine.Score(5, now, now.Add(time.Hour))
	floor := 5.0 / math.Pow(2.0, 1.8)
	if math.Abs(clamped-floor) > 1e-12 {
		t.Errorf("clamped score = %v, want %v", clamped, floor)
	}
}

func TestLogPlayMovesCounterAndLogTogether(t *testing.T) {
	engine, repo, notifier, _ := newTestEngine(7 * 24 * time.Hour)
	ctx := context.Background()

	if err := engine.LogPlay(ctx, 1, 1); err != nil {
		t.Fatalf("LogPlay: %v", err)
	}
	if err := engine.LogPlay(ctx, 0, 1); err != nil {
		t.Fatalf("LogPlay anonymous: %v", err)
	}

	if repo.songs[1].NumPlays != 2 {
		t.Errorf("num_plays = %d, want 2", repo.songs[1].NumPlays)
	}
	if len(repo.plays) != 2 {
		t.Errorf("play log has %d rows, want 2", len(repo.plays))
	}
	if len(notifier.verbs) != 2 {
		t.Errorf("recorded %d activities, want 2", len(notifier.verbs))
	}

	if err := engine.LogPlay(ctx, 1, 999); err != ErrSongNotFound {
		t.Errorf("LogPlay on missing song: err = %v, want ErrSongNotFound", err)
	}
}

func TestLogPlayWithoutNotifier(t *testing.T) {
	repo := &fakeSongRepo{songs: map[int64]*model.Song{1: {ID: 1, Title: "kukere"}}}
	engine := NewEngine(repo, nil, 1.8, 7*24*time.Hour)

	if err := engine.LogPlay(context.Background(), 1, 1); err != nil {
		t.Fatalf("LogPlay: %v", err)
	}
	if repo.songs[1].NumPlays != 1 {
		t.Errorf("num_plays = %d, want 1", repo.songs[1].NumPlays)
	}
}

func TestRebuildUsesOnlyWindowedPlays(t *testing.T) {
	window := 7 * 24 * time.Hour
	engine, repo, _, now := newTestEngine(window)

	// Song 1: two plays inside the window. Song 2: plays outside only.
	repo.plays = []model.SongPlay{
		{SongID: 1, DateAdded: now.Add(-time.Hour)},
		{SongID: 1, DateAdded: now.Add(-3 * 24 * time.Hour)},
		{SongID: 2, DateAdded: now.Add(-10 * 24 * time.Hour)},
	}

	if err := engine.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if len(repo.ranks) != 1 {
		t.Fatalf("rank cache has %d rows, want 1", len(repo.ranks))
	}
	if repo.ranks[0].SongID != 1 {
		t.Errorf("ranked song = %d, want 1", repo.ranks[0].SongID)
	}
	want := engine.Score(2, now, now.Add(-time.Hour))
	if math.Abs(repo.ranks[0].Score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", repo.ranks[0].Score, want)
	}
}

func TestHeavyRotationOrdering(t *testing.T) {
	engine, repo, _, _ := newTestEngine(7 * 24 * time.Hour)
	repo.ranks = []model.SongRank{
		{SongID: 1, Score: 0.5},
		{SongID: 2, Score: 0.9},
	}

	top, err := engine.HeavyRotation(context.Background(), 10)
	if err != nil {
		t.Fatalf("HeavyRotation: %v", err)
	}
	if len(top) != 2 || top[0].Song.ID != 2 || top[1].Song.ID != 1 {
		t.Errorf("heavy rotation order wrong: %+v", top)
	}
}
