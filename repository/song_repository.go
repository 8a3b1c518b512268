package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"noddymix/model"
)

// PlayStats is the aggregate of one song's plays inside a time window.
type PlayStats struct {
	SongID   int64
	Plays    int64
	LastPlay time.Time
}

// RankedSong pairs a song with its cached popularity score.
type RankedSong struct {
	Song  *model.Song
	Score float64
}

// SongRepository defines the interface for song, album, play log and rank
// data operations.
type SongRepository interface {
	BeginTx() (*sql.Tx, error)
	RollbackTx(tx *sql.Tx)
	CommitTx(tx *sql.Tx) error

	CreateSong(song *model.Song) (int64, error)
	GetSongByID(id int64) (*model.Song, error)
	UpdateSongAudio(songID int64, audioPath string) error
	UpdateSongLength(songID int64, length int) error
	SongsMissingLength() ([]*model.Song, error)
	DeleteSongWithTx(tx *sql.Tx, songID int64) error
	NewReleases(since time.Time, limit int) ([]*model.Song, error)

	CreateArtist(artist *model.Artist) (int64, error)
	GetArtistByName(name string) (*model.Artist, error)
	CreateAlbum(album *model.Album) (int64, error)
	GetAlbumByID(id int64) (*model.Album, error)
	UpdateAlbumArt(albumID int64, artPath string) error

	IncrementNumPlaysWithTx(tx *sql.Tx, songID int64) error
	CreateSongPlayWithTx(tx *sql.Tx, songID int64, playedAt time.Time) (int64, error)
	PlayStatsSince(since time.Time) ([]PlayStats, error)
	ReplaceRanks(ranks []model.SongRank) error
	TopRanked(limit int) ([]RankedSong, error)
}

// mysqlSongRepository implements SongRepository for MySQL.
type mysqlSongRepository struct {
	db *sql.DB
}

// NewMySQLSongRepository creates a new mysqlSongRepository.
func NewMySQLSongRepository(db *sql.DB) SongRepository {
	return &mysqlSongRepository{db: db}
}

const songColumns = `id, title, artist_id, album_id, audio_path, num_plays, length, date_added`

func scanSong(row interface{ Scan(...interface{}) error }) (*model.Song, error) {
	s := &model.Song{}
	var audio sql.NullString
	err := row.Scan(&s.ID, &s.Title, &s.ArtistID, &s.AlbumID, &audio, &s.NumPlays, &s.Length, &s.DateAdded)
	if err != nil {
		return nil, err
	}
	s.AudioPath = audio.String
	return s, nil
}

// BeginTx starts a new transaction.
func (r *mysqlSongRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

// RollbackTx rolls back a transaction.
func (r *mysqlSongRepository) RollbackTx(tx *sql.Tx) {
	if tx != nil {
		tx.Rollback()
	}
}

// CommitTx commits a transaction.
func (r *mysqlSongRepository) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// CreateSong inserts a song and its featuring credits.
func (r *mysqlSongRepository) CreateSong(song *model.Song) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for create song: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO songs (title, artist_id, album_id, audio_path, length) VALUES (?, ?, ?, ?, ?)`,
		song.Title, song.ArtistID, song.AlbumID, song.AudioPath, song.Length)
	if err != nil {
		return 0, fmt.Errorf("failed to execute create song: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for song: %w", err)
	}

	for _, artistID := range song.FeaturingID {
		if _, err := tx.Exec(`INSERT INTO song_featuring (song_id, artist_id) VALUES (?, ?)`, id, artistID); err != nil {
			return 0, fmt.Errorf("failed to insert featuring credit for song ID %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit create song: %w", err)
	}
	return id, nil
}

// GetSongByID retrieves a song by its ID, featuring credits included.
func (r *mysqlSongRepository) GetSongByID(id int64) (*model.Song, error) {
	row := r.db.QueryRow(`SELECT `+songColumns+` FROM songs WHERE id = ?`, id)
	song, err := scanSong(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Song not found
		}
		return nil, fmt.Errorf("failed to scan song by ID %d: %w", id, err)
	}

	rows, err := r.db.Query(`SELECT artist_id FROM song_featuring WHERE song_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query featuring credits for song ID %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var artistID int64
		if err := rows.Scan(&artistID); err != nil {
			return nil, fmt.Errorf("failed to scan featuring credit: %w", err)
		}
		song.FeaturingID = append(song.FeaturingID, artistID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration over featuring credits: %w", err)
	}
	return song, nil
}

// UpdateSongAudio points the song at a new audio object key.
func (r *mysqlSongRepository) UpdateSongAudio(songID int64, audioPath string) error {
	if _, err := r.db.Exec(`UPDATE songs SET audio_path = ? WHERE id = ?`, audioPath, songID); err != nil {
		return fmt.Errorf("failed to update audio path for song ID %d: %w", songID, err)
	}
	return nil
}

// UpdateSongLength records the song's duration in seconds.
func (r *mysqlSongRepository) UpdateSongLength(songID int64, length int) error {
	if _, err := r.db.Exec(`UPDATE songs SET length = ? WHERE id = ?`, length, songID); err != nil {
		return fmt.Errorf("failed to update length for song ID %d: %w", songID, err)
	}
	return nil
}

// SongsMissingLength lists songs whose duration has not been probed yet.
func (r *mysqlSongRepository) SongsMissingLength() ([]*model.Song, error) {
	rows, err := r.db.Query(`SELECT ` + songColumns + ` FROM songs WHERE length = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs missing length: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in SongsMissingLength: %w", err)
		}
		songs = append(songs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in SongsMissingLength: %w", err)
	}
	return songs, nil
}

// DeleteSongWithTx removes a song row. Memberships, play rows and the rank
// row go with it via foreign key cascade; the playlist counter bookkeeping
// must already have happened in the same transaction.
func (r *mysqlSongRepository) DeleteSongWithTx(tx *sql.Tx, songID int64) error {
	if _, err := tx.Exec(`DELETE FROM songs WHERE id = ?`, songID); err != nil {
		return fmt.Errorf("failed to delete song ID %d: %w", songID, err)
	}
	return nil
}

// NewReleases lists songs added since the given time, newest first.
func (r *mysqlSongRepository) NewReleases(since time.Time, limit int) ([]*model.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE date_added >= ? ORDER BY date_added DESC LIMIT ?`
	rows, err := r.db.Query(query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query new releases: %w", err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song in NewReleases: %w", err)
		}
		songs = append(songs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in NewReleases: %w", err)
	}
	return songs, nil
}

// CreateArtist adds a new artist.
func (r *mysqlSongRepository) CreateArtist(artist *model.Artist) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO artists (name) VALUES (?)`, artist.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to execute create artist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for artist: %w", err)
	}
	return id, nil
}

// GetArtistByName retrieves an artist by exact name.
func (r *mysqlSongRepository) GetArtistByName(name string) (*model.Artist, error) {
	a := &model.Artist{}
	err := r.db.QueryRow(`SELECT id, name FROM artists WHERE name = ?`, name).Scan(&a.ID, &a.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Artist not found
		}
		return nil, fmt.Errorf("failed to scan artist by name %s: %w", name, err)
	}
	return a, nil
}

// CreateAlbum adds a new album.
func (r *mysqlSongRepository) CreateAlbum(album *model.Album) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO albums (title, art_path) VALUES (?, ?)`, album.Title, album.ArtPath)
	if err != nil {
		return 0, fmt.Errorf("failed to execute create album: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for album: %w", err)
	}
	return id, nil
}

// GetAlbumByID retrieves an album by its ID.
func (r *mysqlSongRepository) GetAlbumByID(id int64) (*model.Album, error) {
	a := &model.Album{}
	var art sql.NullString
	err := r.db.QueryRow(`SELECT id, title, art_path, created_at, updated_at FROM albums WHERE id = ?`, id).
		Scan(&a.ID, &a.Title, &art, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Album not found
		}
		return nil, fmt.Errorf("failed to scan album by ID %d: %w", id, err)
	}
	a.ArtPath = art.String
	return a, nil
}

// UpdateAlbumArt points the album at a new art object key.
func (r *mysqlSongRepository) UpdateAlbumArt(albumID int64, artPath string) error {
	if _, err := r.db.Exec(`UPDATE albums SET art_path = ? WHERE id = ?`, artPath, albumID); err != nil {
		return fmt.Errorf("failed to update art path for album ID %d: %w", albumID, err)
	}
	return nil
}

// IncrementNumPlaysWithTx bumps the lifetime play counter. It runs in the
// same transaction as the play row insert so counter and log can't drift.
func (r *mysqlSongRepository) IncrementNumPlaysWithTx(tx *sql.Tx, songID int64) error {
	if _, err := tx.Exec(`UPDATE songs SET num_plays = num_plays + 1 WHERE id = ?`, songID); err != nil {
		return fmt.Errorf("failed to increment num_plays for song ID %d: %w", songID, err)
	}
	return nil
}

// CreateSongPlayWithTx appends one play event to the log.
func (r *mysqlSongRepository) CreateSongPlayWithTx(tx *sql.Tx, songID int64, playedAt time.Time) (int64, error) {
	res, err := tx.Exec(`INSERT INTO song_plays (song_id, date_added) VALUES (?, ?)`, songID, playedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert play for song ID %d: %w", songID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for song play: %w", err)
	}
	return id, nil
}

// PlayStatsSince aggregates the play log per song over the window starting
// at since. Songs with no plays inside the window are absent from the
// result.
func (r *mysqlSongRepository) PlayStatsSince(since time.Time) ([]PlayStats, error) {
	query := `SELECT song_id, COUNT(*), MAX(date_added) FROM song_plays
	           WHERE date_added >= ? GROUP BY song_id`
	rows, err := r.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query play stats: %w", err)
	}
	defer rows.Close()

	stats := make([]PlayStats, 0)
	for rows.Next() {
		var s PlayStats
		if err := rows.Scan(&s.SongID, &s.Plays, &s.LastPlay); err != nil {
			return nil, fmt.Errorf("failed to scan play stats row: %w", err)
		}
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in PlayStatsSince: %w", err)
	}
	return stats, nil
}

// ReplaceRanks swaps the rank cache wholesale. The old rows are dropped
// and the new scores inserted in one transaction so readers never see a
// half-built cache.
func (r *mysqlSongRepository) ReplaceRanks(ranks []model.SongRank) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for replace ranks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM song_ranks`); err != nil {
		return fmt.Errorf("failed to clear song ranks: %w", err)
	}

	if len(ranks) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("(?, ?),", len(ranks)), ",")
		args := make([]interface{}, 0, len(ranks)*2)
		for _, rank := range ranks {
			args = append(args, rank.SongID, rank.Score)
		}
		if _, err := tx.Exec(`INSERT INTO song_ranks (song_id, score) VALUES `+placeholders, args...); err != nil {
			return fmt.Errorf("failed to insert song ranks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace ranks: %w", err)
	}
	return nil
}

// TopRanked lists the highest-scored songs from the rank cache. Equal
// scores fall back to the newer song ID first.
func (r *mysqlSongRepository) TopRanked(limit int) ([]RankedSong, error) {
	query := `SELECT s.id, s.title, s.artist_id, s.album_id, s.audio_path, s.num_plays, s.length, s.date_added, sr.score
	           FROM song_ranks sr JOIN songs s ON s.id = sr.song_id
	           ORDER BY sr.score DESC, s.id DESC LIMIT ?`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top ranked songs: %w", err)
	}
	defer rows.Close()

	ranked := make([]RankedSong, 0)
	for rows.Next() {
		s := &model.Song{}
		var audio sql.NullString
		var score float64
		if err := rows.Scan(&s.ID, &s.Title, &s.ArtistID, &s.AlbumID, &audio, &s.NumPlays, &s.Length, &s.DateAdded, &score); err != nil {
			return nil, fmt.Errorf("failed to scan ranked song: %w", err)
		}
		s.AudioPath = audio.String
		ranked = append(ranked, RankedSong{Song: s, Score: score})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in TopRanked: %w", err)
	}
	return ranked, nil
}
