package session

import (
	"context"
	"errors"

	"noddymix/core/playlist"
	"noddymix/model"
)

// ErrPlaylistNotFound indicates the session holds no playlist with the
// given ID.
var ErrPlaylistNotFound = errors.New("session playlist not found")

// Session is the per-visitor state for listeners with no account:
// ephemeral playlists and a short listening history. Dirty marks the
// session as needing a write-back; reads alone never touch the store.
type Session struct {
	ID        string                             `json:"id"`
	Playlists map[int64]*model.EphemeralPlaylist `json:"playlists"`
	History   []int64                            `json:"history"`
	Dirty     bool                               `json:"-"`
}

// Store persists sessions. Get returns nil for an unknown ID; Save
// overwrites the whole session and resets its expiry.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}

// SongLookup is the slice of the song repository the session layer needs
// to derive covers and render history.
type SongLookup interface {
	GetSongByID(id int64) (*model.Song, error)
}

// Manager applies playlist operations to session state, mirroring the
// semantics of persisted playlists: same title normalization, same
// idempotent add, same page-windowed reorder. IDs are small integers
// assigned per session and mean nothing outside it.
type Manager struct {
	store        Store
	songs        SongLookup
	songsPerPage int
	historyLimit int
}

// NewManager creates a session Manager. historyLimit caps the listening
// history kept per session.
func NewManager(store Store, songs SongLookup, songsPerPage, historyLimit int) *Manager {
	return &Manager{
		store:        store,
		songs:        songs,
		songsPerPage: songsPerPage,
		historyLimit: historyLimit,
	}
}

func (m *Manager) load(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = &Session{ID: sessionID, Playlists: make(map[int64]*model.EphemeralPlaylist)}
	}
	if sess.Playlists == nil {
		sess.Playlists = make(map[int64]*model.EphemeralPlaylist)
	}
	return sess, nil
}

func (m *Manager) flush(ctx context.Context, sess *Session) error {
	if !sess.Dirty {
		return nil
	}
	sess.Dirty = false
	return m.store.Save(ctx, sess)
}

// CreatePlaylist adds an empty ephemeral playlist to the session. The new
// ID is one past the highest the session has seen.
func (m *Manager) CreatePlaylist(ctx context.Context, sessionID, title string) (*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var id int64 = 1
	for existing := range sess.Playlists {
		if existing >= id {
			id = existing + 1
		}
	}

	p := &model.EphemeralPlaylist{
		ID:      id,
		Title:   playlist.NormalizeTitle(title),
		SongIDs: []int64{},
	}
	sess.Playlists[id] = p
	sess.Dirty = true

	if err := m.flush(ctx, sess); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePlaylist removes an ephemeral playlist from the session.
func (m *Manager) DeletePlaylist(ctx context.Context, sessionID string, playlistID int64) error {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := sess.Playlists[playlistID]; !ok {
		return ErrPlaylistNotFound
	}
	delete(sess.Playlists, playlistID)
	sess.Dirty = true
	return m.flush(ctx, sess)
}

// RenamePlaylist retitles an ephemeral playlist, with the usual title
// normalization.
func (m *Manager) RenamePlaylist(ctx context.Context, sessionID string, playlistID int64, title string) (*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.Playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	p.Title = playlist.NormalizeTitle(title)
	sess.Dirty = true
	if err := m.flush(ctx, sess); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlaylist retrieves one ephemeral playlist.
func (m *Manager) GetPlaylist(ctx context.Context, sessionID string, playlistID int64) (*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.Playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	return p, nil
}

// Playlists lists the session's ephemeral playlists, newest ID first.
func (m *Manager) Playlists(ctx context.Context, sessionID string) ([]*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.EphemeralPlaylist, 0, len(sess.Playlists))
	var maxID int64
	for id := range sess.Playlists {
		if id > maxID {
			maxID = id
		}
	}
	for id := maxID; id >= 1; id-- {
		if p, ok := sess.Playlists[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddSongs appends songs to an ephemeral playlist. Songs already present
// and songs missing from the catalog are skipped.
func (m *Manager) AddSongs(ctx context.Context, sessionID string, playlistID int64, songIDs []int64) (*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.Playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}

	present := make(map[int64]bool, len(p.SongIDs))
	for _, id := range p.SongIDs {
		present[id] = true
	}
	for _, id := range songIDs {
		if present[id] {
			continue
		}
		song, err := m.songs.GetSongByID(id)
		if err != nil {
			return nil, err
		}
		if song == nil {
			continue
		}
		p.SongIDs = append(p.SongIDs, id)
		present[id] = true
	}

	if err := m.savePlaylist(p); err != nil {
		return nil, err
	}
	sess.Dirty = true
	if err := m.flush(ctx, sess); err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveSongs drops songs from an ephemeral playlist, keeping the order
// of the survivors.
func (m *Manager) RemoveSongs(ctx context.Context, sessionID string, playlistID int64, songIDs []int64) (*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.Playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}

	drop := make(map[int64]bool, len(songIDs))
	for _, id := range songIDs {
		drop[id] = true
	}
	kept := p.SongIDs[:0]
	for _, id := range p.SongIDs {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	p.SongIDs = kept

	if err := m.savePlaylist(p); err != nil {
		return nil, err
	}
	sess.Dirty = true
	if err := m.flush(ctx, sess); err != nil {
		return nil, err
	}
	return p, nil
}

// ReorderSongs replaces one page's worth of the playlist with the given
// order. Songs on other pages are untouched.
func (m *Manager) ReorderSongs(ctx context.Context, sessionID string, playlistID int64, page int, songIDs []int64) (*model.EphemeralPlaylist, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := sess.Playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	if page < 1 {
		page = 1
	}

	start := m.songsPerPage * (page - 1)
	end := m.songsPerPage * page
	if start > len(p.SongIDs) {
		start = len(p.SongIDs)
	}
	if end > len(p.SongIDs) {
		end = len(p.SongIDs)
	}

	reordered := make([]int64, 0, len(p.SongIDs))
	reordered = append(reordered, p.SongIDs[:start]...)
	reordered = append(reordered, songIDs...)
	reordered = append(reordered, p.SongIDs[end:]...)
	p.SongIDs = reordered

	if err := m.savePlaylist(p); err != nil {
		return nil, err
	}
	sess.Dirty = true
	if err := m.flush(ctx, sess); err != nil {
		return nil, err
	}
	return p, nil
}

// OrderedSongs resolves one page of an ephemeral playlist to songs. IDs
// whose songs have since left the catalog are skipped.
func (m *Manager) OrderedSongs(ctx context.Context, sessionID string, playlistID int64, page int) ([]*model.Song, error) {
	p, err := m.GetPlaylist(ctx, sessionID, playlistID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	start := m.songsPerPage * (page - 1)
	end := m.songsPerPage * page
	if start > len(p.SongIDs) {
		start = len(p.SongIDs)
	}
	if end > len(p.SongIDs) {
		end = len(p.SongIDs)
	}

	songs := make([]*model.Song, 0, end-start)
	for _, id := range p.SongIDs[start:end] {
		song, err := m.songs.GetSongByID(id)
		if err != nil {
			return nil, err
		}
		if song != nil {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

// RecordHistory notes a play in the session's listening history. The song
// moves to the front; the history is capped and duplicate-free.
func (m *Manager) RecordHistory(ctx context.Context, sessionID string, songID int64) error {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}

	history := make([]int64, 0, len(sess.History)+1)
	history = append(history, songID)
	for _, id := range sess.History {
		if id != songID {
			history = append(history, id)
		}
	}
	if len(history) > m.historyLimit {
		history = history[:m.historyLimit]
	}
	sess.History = history
	sess.Dirty = true
	return m.flush(ctx, sess)
}

// RecentHistory resolves the session's listening history to songs, most
// recent first.
func (m *Manager) RecentHistory(ctx context.Context, sessionID string) ([]*model.Song, error) {
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	songs := make([]*model.Song, 0, len(sess.History))
	for _, id := range sess.History {
		song, err := m.songs.GetSongByID(id)
		if err != nil {
			return nil, err
		}
		if song != nil {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

// savePlaylist recomputes the playlist's derived fields, always: the song
// count and the cover from the first song.
func (m *Manager) savePlaylist(p *model.EphemeralPlaylist) error {
	p.NumSongs = len(p.SongIDs)
	p.CoverAlbumID = 0
	if len(p.SongIDs) > 0 {
		song, err := m.songs.GetSongByID(p.SongIDs[0])
		if err != nil {
			return err
		}
		if song != nil {
			p.CoverAlbumID = song.AlbumID
		}
	}
	return nil
}
