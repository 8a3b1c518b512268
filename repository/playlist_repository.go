package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"noddymix/model"
)

// PlaylistRepository defines the interface for playlist, membership and
// subscription data operations.
//
// Methods with a WithTx suffix take part in a caller-owned transaction;
// the reads among them (counts, max order, first album) exist so the
// counter refresh can see the same snapshot the relationship change is
// part of.
type PlaylistRepository interface {
	BeginTx() (*sql.Tx, error)
	RollbackTx(tx *sql.Tx)
	CommitTx(tx *sql.Tx) error

	CreatePlaylistWithTx(tx *sql.Tx, p *model.Playlist) (int64, error)
	GetPlaylistByID(id int64) (*model.Playlist, error)
	UpdatePlaylistWithTx(tx *sql.Tx, p *model.Playlist) error
	UpdateCoverWithTx(tx *sql.Tx, playlistID int64, coverAlbumID sql.NullInt64) error
	DeletePlaylistWithTx(tx *sql.Tx, id int64) error
	PlaylistsByOwner(ownerID int64, limit, offset int) ([]*model.Playlist, error)

	GetMembershipWithTx(tx *sql.Tx, playlistID, songID int64) (*model.PlaylistSong, error)
	MaxOrderWithTx(tx *sql.Tx, playlistID int64) (int, bool, error)
	CreateMembershipWithTx(tx *sql.Tx, m *model.PlaylistSong) (int64, error)
	UpdateMembershipOrderWithTx(tx *sql.Tx, membershipID int64, order int) error
	DeleteMembershipsWithTx(tx *sql.Tx, playlistID int64, songIDs []int64) (int64, error)
	MembershipsByPlaylistWithTx(tx *sql.Tx, playlistID int64) ([]*model.PlaylistSong, error)
	MembershipsBySongWithTx(tx *sql.Tx, songID int64) ([]*model.PlaylistSong, error)
	OrderedSongs(playlistID int64, limit, offset int) ([]*model.Song, error)
	FirstSongAlbumIDWithTx(tx *sql.Tx, playlistID int64) (sql.NullInt64, error)
	CountSongsWithTx(tx *sql.Tx, playlistID int64) (int, error)
	AdjustNumSongsWithTx(tx *sql.Tx, playlistID int64, delta int) error

	AddSubscriberWithTx(tx *sql.Tx, playlistID, userID int64) (bool, error)
	RemoveSubscriberWithTx(tx *sql.Tx, playlistID, userID int64) (bool, error)
	CountSubscribersWithTx(tx *sql.Tx, playlistID int64) (int, error)
	AdjustNumSubscribersWithTx(tx *sql.Tx, playlistID int64, delta int) error
	SubscriptionsByUserWithTx(tx *sql.Tx, userID int64) ([]int64, error)
}

// mysqlPlaylistRepository implements PlaylistRepository for MySQL.
type mysqlPlaylistRepository struct {
	db *sql.DB
}

// NewMySQLPlaylistRepository creates a new mysqlPlaylistRepository.
func NewMySQLPlaylistRepository(db *sql.DB) PlaylistRepository {
	return &mysqlPlaylistRepository{db: db}
}

const playlistColumns = `id, owner_id, title, is_public, cover_album_id,
	num_songs, num_subscribers, date_added`

func scanPlaylist(row interface{ Scan(...interface{}) error }) (*model.Playlist, error) {
	p := &model.Playlist{}
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.IsPublic, &p.CoverAlbumID,
		&p.NumSongs, &p.NumSubscribers, &p.DateAdded)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// BeginTx starts a new transaction.
func (r *mysqlPlaylistRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

// RollbackTx rolls back a transaction.
func (r *mysqlPlaylistRepository) RollbackTx(tx *sql.Tx) {
	if tx != nil {
		tx.Rollback()
	}
}

// CommitTx commits a transaction.
func (r *mysqlPlaylistRepository) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// CreatePlaylistWithTx inserts a playlist row.
func (r *mysqlPlaylistRepository) CreatePlaylistWithTx(tx *sql.Tx, p *model.Playlist) (int64, error) {
	query := `INSERT INTO playlists (owner_id, title, is_public) VALUES (?, ?, ?)`
	res, err := tx.Exec(query, p.OwnerID, p.Title, p.IsPublic)
	if err != nil {
		return 0, fmt.Errorf("failed to execute create playlist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for playlist: %w", err)
	}
	return id, nil
}

// GetPlaylistByID retrieves a playlist by its ID.
func (r *mysqlPlaylistRepository) GetPlaylistByID(id int64) (*model.Playlist, error) {
	row := r.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id)
	p, err := scanPlaylist(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Playlist not found
		}
		return nil, fmt.Errorf("failed to scan playlist by ID %d: %w", id, err)
	}
	return p, nil
}

// UpdatePlaylistWithTx writes the playlist's title, cover and counters.
func (r *mysqlPlaylistRepository) UpdatePlaylistWithTx(tx *sql.Tx, p *model.Playlist) error {
	query := `UPDATE playlists SET title = ?, is_public = ?, cover_album_id = ?,
	           num_songs = ?, num_subscribers = ? WHERE id = ?`
	_, err := tx.Exec(query, p.Title, p.IsPublic, p.CoverAlbumID, p.NumSongs, p.NumSubscribers, p.ID)
	if err != nil {
		return fmt.Errorf("failed to execute update playlist for ID %d: %w", p.ID, err)
	}
	return nil
}

// UpdateCoverWithTx rewrites just the derived cover field. Used by
// cascades that must leave the counters alone.
func (r *mysqlPlaylistRepository) UpdateCoverWithTx(tx *sql.Tx, playlistID int64, coverAlbumID sql.NullInt64) error {
	if _, err := tx.Exec(`UPDATE playlists SET cover_album_id = ? WHERE id = ?`, coverAlbumID, playlistID); err != nil {
		return fmt.Errorf("failed to update cover for playlist ID %d: %w", playlistID, err)
	}
	return nil
}

// DeletePlaylistWithTx removes a playlist; memberships and subscriptions
// go with it via foreign key cascade.
func (r *mysqlPlaylistRepository) DeletePlaylistWithTx(tx *sql.Tx, id int64) error {
	if _, err := tx.Exec(`DELETE FROM playlists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete playlist ID %d: %w", id, err)
	}
	return nil
}

// PlaylistsByOwner retrieves a page of a user's playlists, newest first.
func (r *mysqlPlaylistRepository) PlaylistsByOwner(ownerID int64, limit, offset int) ([]*model.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE owner_id = ?
	           ORDER BY date_added DESC LIMIT ? OFFSET ?`
	rows, err := r.db.Query(query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists for owner ID %d: %w", ownerID, err)
	}
	defer rows.Close()

	playlists := make([]*model.Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist in PlaylistsByOwner: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in PlaylistsByOwner: %w", err)
	}
	return playlists, nil
}

// GetMembershipWithTx retrieves the (playlist, song) membership if present.
func (r *mysqlPlaylistRepository) GetMembershipWithTx(tx *sql.Tx, playlistID, songID int64) (*model.PlaylistSong, error) {
	query := "SELECT id, playlist_id, song_id, `order`, date_added FROM playlist_songs WHERE playlist_id = ? AND song_id = ?"
	row := tx.QueryRow(query, playlistID, songID)
	m := &model.PlaylistSong{}
	err := row.Scan(&m.ID, &m.PlaylistID, &m.SongID, &m.Order, &m.DateAdded)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not a member
		}
		return nil, fmt.Errorf("failed to scan membership (%d, %d): %w", playlistID, songID, err)
	}
	return m, nil
}

// MaxOrderWithTx returns the highest order value in the playlist and
// whether the playlist has any members at all.
func (r *mysqlPlaylistRepository) MaxOrderWithTx(tx *sql.Tx, playlistID int64) (int, bool, error) {
	query := "SELECT MAX(`order`) FROM playlist_songs WHERE playlist_id = ?"
	var max sql.NullInt64
	if err := tx.QueryRow(query, playlistID).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("failed to query max order for playlist ID %d: %w", playlistID, err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

// CreateMembershipWithTx inserts a membership row with its order already
// assigned by the caller.
func (r *mysqlPlaylistRepository) CreateMembershipWithTx(tx *sql.Tx, m *model.PlaylistSong) (int64, error) {
	query := "INSERT INTO playlist_songs (playlist_id, song_id, `order`) VALUES (?, ?, ?)"
	res, err := tx.Exec(query, m.PlaylistID, m.SongID, m.Order)
	if err != nil {
		return 0, fmt.Errorf("failed to execute create membership (%d, %d): %w", m.PlaylistID, m.SongID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for membership: %w", err)
	}
	return id, nil
}

// UpdateMembershipOrderWithTx rewrites one membership's order value.
func (r *mysqlPlaylistRepository) UpdateMembershipOrderWithTx(tx *sql.Tx, membershipID int64, order int) error {
	if _, err := tx.Exec("UPDATE playlist_songs SET `order` = ? WHERE id = ?", order, membershipID); err != nil {
		return fmt.Errorf("failed to update order for membership ID %d: %w", membershipID, err)
	}
	return nil
}

// DeleteMembershipsWithTx removes the memberships of the given songs from
// one playlist and reports how many rows went away. Remaining rows keep
// their order values; gaps are fine.
func (r *mysqlPlaylistRepository) DeleteMembershipsWithTx(tx *sql.Tx, playlistID int64, songIDs []int64) (int64, error) {
	if len(songIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(songIDs)), ",")
	args := make([]interface{}, 0, len(songIDs)+1)
	args = append(args, playlistID)
	for _, id := range songIDs {
		args = append(args, id)
	}
	res, err := tx.Exec("DELETE FROM playlist_songs WHERE playlist_id = ? AND song_id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memberships for playlist ID %d: %w", playlistID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected deleting memberships: %w", err)
	}
	return n, nil
}

// MembershipsByPlaylistWithTx retrieves all memberships of a playlist,
// lowest order first.
func (r *mysqlPlaylistRepository) MembershipsByPlaylistWithTx(tx *sql.Tx, playlistID int64) ([]*model.PlaylistSong, error) {
	query := "SELECT id, playlist_id, song_id, `order`, date_added FROM playlist_songs WHERE playlist_id = ? ORDER BY `order` ASC"
	rows, err := tx.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships for playlist ID %d: %w", playlistID, err)
	}
	defer rows.Close()

	memberships := make([]*model.PlaylistSong, 0)
	for rows.Next() {
		m := &model.PlaylistSong{}
		if err := rows.Scan(&m.ID, &m.PlaylistID, &m.SongID, &m.Order, &m.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan membership in MembershipsByPlaylistWithTx: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in MembershipsByPlaylistWithTx: %w", err)
	}
	return memberships, nil
}

// MembershipsBySongWithTx retrieves every membership of one song across
// all playlists. Used by the song deletion cascade.
func (r *mysqlPlaylistRepository) MembershipsBySongWithTx(tx *sql.Tx, songID int64) ([]*model.PlaylistSong, error) {
	query := "SELECT id, playlist_id, song_id, `order`, date_added FROM playlist_songs WHERE song_id = ?"
	rows, err := tx.Query(query, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships for song ID %d: %w", songID, err)
	}
	defer rows.Close()

	memberships := make([]*model.PlaylistSong, 0)
	for rows.Next() {
		m := &model.PlaylistSong{}
		if err := rows.Scan(&m.ID, &m.PlaylistID, &m.SongID, &m.Order, &m.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan membership in MembershipsBySongWithTx: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in MembershipsBySongWithTx: %w", err)
	}
	return memberships, nil
}

// OrderedSongs retrieves a page of a playlist's songs in playlist order.
// Ties on the order value are broken by the song's date_added, newest
// first.
func (r *mysqlPlaylistRepository) OrderedSongs(playlistID int64, limit, offset int) ([]*model.Song, error) {
	query := "SELECT s.id, s.title, s.artist_id, s.album_id, s.audio_path, s.num_plays, s.length, s.date_added" +
		" FROM playlist_songs ps JOIN songs s ON s.id = ps.song_id" +
		" WHERE ps.playlist_id = ? ORDER BY ps.`order` ASC, s.date_added DESC LIMIT ? OFFSET ?"
	rows, err := r.db.Query(query, playlistID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ordered songs for playlist ID %d: %w", playlistID, err)
	}
	defer rows.Close()

	songs := make([]*model.Song, 0)
	for rows.Next() {
		s := &model.Song{}
		var audio sql.NullString
		if err := rows.Scan(&s.ID, &s.Title, &s.ArtistID, &s.AlbumID, &audio, &s.NumPlays, &s.Length, &s.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan song in OrderedSongs: %w", err)
		}
		s.AudioPath = audio.String
		songs = append(songs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in OrderedSongs: %w", err)
	}
	return songs, nil
}

// FirstSongAlbumIDWithTx returns the album of the first song in playlist
// order, or an invalid NullInt64 for an empty playlist. Feeds the derived
// cover field.
func (r *mysqlPlaylistRepository) FirstSongAlbumIDWithTx(tx *sql.Tx, playlistID int64) (sql.NullInt64, error) {
	query := "SELECT s.album_id FROM playlist_songs ps JOIN songs s ON s.id = ps.song_id" +
		" WHERE ps.playlist_id = ? ORDER BY ps.`order` ASC, s.date_added DESC LIMIT 1"
	var albumID sql.NullInt64
	err := tx.QueryRow(query, playlistID).Scan(&albumID)
	if err != nil {
		if err == sql.ErrNoRows {
			return sql.NullInt64{}, nil
		}
		return sql.NullInt64{}, fmt.Errorf("failed to query first song album for playlist ID %d: %w", playlistID, err)
	}
	return albumID, nil
}

// CountSongsWithTx counts the true memberships of a playlist.
func (r *mysqlPlaylistRepository) CountSongsWithTx(tx *sql.Tx, playlistID int64) (int, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM playlist_songs WHERE playlist_id = ?`, playlistID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count songs for playlist ID %d: %w", playlistID, err)
	}
	return n, nil
}

// AdjustNumSongsWithTx moves the song counter by delta without touching
// anything else. Used by the song deletion cascade, which must not kick
// off a full refresh.
func (r *mysqlPlaylistRepository) AdjustNumSongsWithTx(tx *sql.Tx, playlistID int64, delta int) error {
	if _, err := tx.Exec(`UPDATE playlists SET num_songs = num_songs + ? WHERE id = ?`, delta, playlistID); err != nil {
		return fmt.Errorf("failed to adjust num_songs for playlist ID %d: %w", playlistID, err)
	}
	return nil
}

// AddSubscriberWithTx inserts a subscription row if absent. Returns true
// when a row was actually created.
func (r *mysqlPlaylistRepository) AddSubscriberWithTx(tx *sql.Tx, playlistID, userID int64) (bool, error) {
	res, err := tx.Exec(`INSERT IGNORE INTO playlist_subscribers (playlist_id, user_id) VALUES (?, ?)`, playlistID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to add subscriber %d to playlist ID %d: %w", userID, playlistID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected adding subscriber: %w", err)
	}
	return n > 0, nil
}

// RemoveSubscriberWithTx deletes a subscription row if present. Returns
// true when a row was actually removed.
func (r *mysqlPlaylistRepository) RemoveSubscriberWithTx(tx *sql.Tx, playlistID, userID int64) (bool, error) {
	res, err := tx.Exec(`DELETE FROM playlist_subscribers WHERE playlist_id = ? AND user_id = ?`, playlistID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove subscriber %d from playlist ID %d: %w", userID, playlistID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected removing subscriber: %w", err)
	}
	return n > 0, nil
}

// CountSubscribersWithTx counts the true subscriptions of a playlist.
func (r *mysqlPlaylistRepository) CountSubscribersWithTx(tx *sql.Tx, playlistID int64) (int, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM playlist_subscribers WHERE playlist_id = ?`, playlistID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscribers for playlist ID %d: %w", playlistID, err)
	}
	return n, nil
}

// AdjustNumSubscribersWithTx moves the subscriber counter by delta. Used
// by the user deletion cascade, which must not run a full refresh.
func (r *mysqlPlaylistRepository) AdjustNumSubscribersWithTx(tx *sql.Tx, playlistID int64, delta int) error {
	if _, err := tx.Exec(`UPDATE playlists SET num_subscribers = num_subscribers + ? WHERE id = ?`, delta, playlistID); err != nil {
		return fmt.Errorf("failed to adjust num_subscribers for playlist ID %d: %w", playlistID, err)
	}
	return nil
}

// SubscriptionsByUserWithTx lists the playlist IDs a user subscribes to.
func (r *mysqlPlaylistRepository) SubscriptionsByUserWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	rows, err := tx.Query(`SELECT playlist_id FROM playlist_subscribers WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscription in SubscriptionsByUserWithTx: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in SubscriptionsByUserWithTx: %w", err)
	}
	return ids, nil
}
