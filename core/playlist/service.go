package playlist

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"noddymix/core/activity"
	"noddymix/logger"
	"noddymix/model"
	"noddymix/repository"
)

// SaveOptions controls which counters a save refreshes. The zero value is
// never used directly; saves default to refreshing everything and cascades
// opt out of the counter they maintain by hand.
type SaveOptions struct {
	RefreshNumSongs       bool
	RefreshNumSubscribers bool
}

var refreshAll = SaveOptions{RefreshNumSongs: true, RefreshNumSubscribers: true}

// Service implements playlist lifecycle, membership, ordering and
// subscription operations. All counter maintenance runs in the same
// transaction as the relationship change it accounts for.
type Service struct {
	playlists    repository.PlaylistRepository
	users        repository.UserRepository
	songs        repository.SongRepository
	notifier     activity.Notifier
	songsPerPage int
}

// NewService creates a playlist Service.
func NewService(
	playlists repository.PlaylistRepository,
	users repository.UserRepository,
	songs repository.SongRepository,
	notifier activity.Notifier,
	songsPerPage int,
) *Service {
	return &Service{
		playlists:    playlists,
		users:        users,
		songs:        songs,
		notifier:     notifier,
		songsPerPage: songsPerPage,
	}
}

// NormalizeTitle trims the given title, truncates it to the maximum length
// and substitutes the default when nothing usable remains. The limit counts
// characters, not bytes, so truncation never splits a multi-byte rune.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.DefaultPlaylistTitle
	}
	if utf8.RuneCountInString(title) > model.PlaylistTitleMaxLen {
		title = string([]rune(title)[:model.PlaylistTitleMaxLen])
	}
	return title
}

// CreatePlaylist creates an empty playlist for ownerID and bumps their
// playlist counter in the same transaction.
func (s *Service) CreatePlaylist(ctx context.Context, ownerID int64, title string, isPublic bool) (*model.Playlist, error) {
	p := &model.Playlist{
		OwnerID:  ownerID,
		Title:    NormalizeTitle(title),
		IsPublic: isPublic,
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	id, err := s.playlists.CreatePlaylistWithTx(tx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	if err := s.users.AdjustNumPlaylistsWithTx(tx, ownerID, 1); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}

	s.notifier.Record(ctx, ownerID, "created", model.Ref{}, model.Ref{Kind: model.RefPlaylist, ID: p.ID})
	return s.playlists.GetPlaylistByID(p.ID)
}

// RenamePlaylist sets a new title on an owned playlist. The title goes
// through the same normalization as creation.
func (s *Service) RenamePlaylist(ctx context.Context, userID, playlistID int64, title string) (*model.Playlist, error) {
	p, err := s.ownedPlaylist(userID, playlistID)
	if err != nil {
		return nil, err
	}
	p.Title = NormalizeTitle(title)

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	if err := s.refreshWithTx(tx, p, refreshAll); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}
	return s.playlists.GetPlaylistByID(playlistID)
}

// DeletePlaylist removes an owned playlist and decrements the owner's
// playlist counter. Memberships and subscriptions cascade away in the
// database.
func (s *Service) DeletePlaylist(ctx context.Context, userID, playlistID int64) error {
	if _, err := s.ownedPlaylist(userID, playlistID); err != nil {
		return err
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return err
	}
	defer s.playlists.RollbackTx(tx)

	if err := s.playlists.DeletePlaylistWithTx(tx, playlistID); err != nil {
		return err
	}
	if err := s.users.AdjustNumPlaylistsWithTx(tx, userID, -1); err != nil {
		return err
	}
	return s.playlists.CommitTx(tx)
}

// AddSongs appends the given songs to an owned playlist, each at the end
// of the current order. Songs already present and songs that don't exist
// are skipped, so the operation is idempotent.
func (s *Service) AddSongs(ctx context.Context, userID, playlistID int64, songIDs []int64) (*model.Playlist, error) {
	p, err := s.ownedPlaylist(userID, playlistID)
	if err != nil {
		return nil, err
	}

	valid := make([]*model.Song, 0, len(songIDs))
	for _, id := range songIDs {
		song, err := s.songs.GetSongByID(id)
		if err != nil {
			return nil, err
		}
		if song != nil {
			valid = append(valid, song)
		}
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	added := make([]*model.Song, 0, len(valid))
	for _, song := range valid {
		existing, err := s.playlists.GetMembershipWithTx(tx, playlistID, song.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}

		order := 0
		max, found, err := s.playlists.MaxOrderWithTx(tx, playlistID)
		if err != nil {
			return nil, err
		}
		if found {
			order = max + 1
		}

		m := &model.PlaylistSong{PlaylistID: playlistID, SongID: song.ID, Order: order}
		if _, err := s.playlists.CreateMembershipWithTx(tx, m); err != nil {
			return nil, err
		}
		added = append(added, song)
	}

	if err := s.refreshWithTx(tx, p, refreshAll); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}

	playlistRef := model.Ref{Kind: model.RefPlaylist, ID: playlistID}
	switch {
	case len(added) == 1:
		s.notifier.Record(ctx, userID, "added", model.Ref{Kind: model.RefSong, ID: added[0].ID}, playlistRef)
	case len(added) > 1:
		s.notifier.Record(ctx, userID, "updated", model.Ref{}, playlistRef)
	}
	return s.playlists.GetPlaylistByID(playlistID)
}

// RemoveSongs removes the given songs from an owned playlist. Songs not in
// the playlist are ignored. Remaining songs keep their order values.
func (s *Service) RemoveSongs(ctx context.Context, userID, playlistID int64, songIDs []int64) (*model.Playlist, error) {
	p, err := s.ownedPlaylist(userID, playlistID)
	if err != nil {
		return nil, err
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	removed, err := s.playlists.DeleteMembershipsWithTx(tx, playlistID, songIDs)
	if err != nil {
		return nil, err
	}
	if err := s.refreshWithTx(tx, p, refreshAll); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}

	if removed > 0 {
		s.notifier.Record(ctx, userID, "updated", model.Ref{}, model.Ref{Kind: model.RefPlaylist, ID: playlistID})
	}
	return s.playlists.GetPlaylistByID(playlistID)
}

// Reorder applies a new order for one page of an owned playlist. songIDs
// is the page's songs in their desired order; stale IDs that no longer
// belong to the playlist are skipped. Songs on other pages keep their
// positions because the new order values start right after the last song
// of the previous page.
func (s *Service) Reorder(ctx context.Context, userID, playlistID int64, page int, songIDs []int64) (*model.Playlist, error) {
	p, err := s.ownedPlaylist(userID, playlistID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	memberships, err := s.playlists.MembershipsByPlaylistWithTx(tx, playlistID)
	if err != nil {
		return nil, err
	}

	offset := 0
	if idx := s.songsPerPage*(page-1) - 1; idx >= 0 && idx < len(memberships) {
		offset = memberships[idx].Order + 1
	}

	bySong := make(map[int64]*model.PlaylistSong, len(memberships))
	for _, m := range memberships {
		bySong[m.SongID] = m
	}

	for i, songID := range songIDs {
		m, ok := bySong[songID]
		if !ok {
			// The song was removed since the client loaded the page.
			continue
		}
		if err := s.playlists.UpdateMembershipOrderWithTx(tx, m.ID, i+offset); err != nil {
			return nil, err
		}
	}

	if err := s.refreshWithTx(tx, p, refreshAll); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}
	return s.playlists.GetPlaylistByID(playlistID)
}

// OrderedSongs retrieves one page of a playlist's songs in playlist order.
func (s *Service) OrderedSongs(ctx context.Context, playlistID int64, page int) ([]*model.Song, error) {
	if page < 1 {
		page = 1
	}
	p, err := s.playlists.GetPlaylistByID(playlistID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return s.playlists.OrderedSongs(playlistID, s.songsPerPage, s.songsPerPage*(page-1))
}

// GetPlaylist retrieves one playlist.
func (s *Service) GetPlaylist(ctx context.Context, playlistID int64) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistByID(playlistID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// PlaylistsByOwner retrieves one page of a user's playlists.
func (s *Service) PlaylistsByOwner(ctx context.Context, ownerID int64, page, perPage int) ([]*model.Playlist, error) {
	if page < 1 {
		page = 1
	}
	return s.playlists.PlaylistsByOwner(ownerID, perPage, perPage*(page-1))
}

// Subscribe adds userID as a subscriber of a playlist they don't own.
// Subscribing twice, or to one's own playlist, is a no-op.
func (s *Service) Subscribe(ctx context.Context, userID, playlistID int64) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistByID(playlistID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.OwnerID == userID {
		return p, nil
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	created, err := s.playlists.AddSubscriberWithTx(tx, playlistID, userID)
	if err != nil {
		return nil, err
	}
	if !created {
		return p, nil
	}
	if err := s.refreshWithTx(tx, p, refreshAll); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}

	s.notifier.Record(ctx, userID, "subscribed", model.Ref{}, model.Ref{Kind: model.RefPlaylist, ID: playlistID})
	return s.playlists.GetPlaylistByID(playlistID)
}

// Unsubscribe removes userID's subscription to a playlist. Unsubscribing
// when not subscribed is a no-op.
func (s *Service) Unsubscribe(ctx context.Context, userID, playlistID int64) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistByID(playlistID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	tx, err := s.playlists.BeginTx()
	if err != nil {
		return nil, err
	}
	defer s.playlists.RollbackTx(tx)

	removed, err := s.playlists.RemoveSubscriberWithTx(tx, playlistID, userID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return p, nil
	}
	if err := s.refreshWithTx(tx, p, refreshAll); err != nil {
		return nil, err
	}
	if err := s.playlists.CommitTx(tx); err != nil {
		return nil, err
	}
	return s.playlists.GetPlaylistByID(playlistID)
}

// DeleteSong removes a song from the catalog. Every playlist holding it
// gets its song counter decremented by hand, without a full refresh, and
// its cover recomputed; the membership rows themselves cascade away with
// the song.
func (s *Service) DeleteSong(ctx context.Context, songID int64) error {
	song, err := s.songs.GetSongByID(songID)
	if err != nil {
		return err
	}
	if song == nil {
		return ErrNotFound
	}

	tx, err := s.songs.BeginTx()
	if err != nil {
		return err
	}
	defer s.songs.RollbackTx(tx)

	memberships, err := s.playlists.MembershipsBySongWithTx(tx, songID)
	if err != nil {
		return err
	}
	if err := s.songs.DeleteSongWithTx(tx, songID); err != nil {
		return err
	}
	for _, m := range memberships {
		if err := s.playlists.AdjustNumSongsWithTx(tx, m.PlaylistID, -1); err != nil {
			return err
		}
		cover, err := s.playlists.FirstSongAlbumIDWithTx(tx, m.PlaylistID)
		if err != nil {
			return err
		}
		if err := s.playlists.UpdateCoverWithTx(tx, m.PlaylistID, cover); err != nil {
			return err
		}
	}
	if err := s.songs.CommitTx(tx); err != nil {
		return err
	}

	logger.Info("Deleted song from catalog",
		logger.Int64("songID", songID),
		logger.Int("playlists", len(memberships)))
	return nil
}

// refreshWithTx recomputes a playlist's derived fields from the ground
// truth and writes the row. The cover is always recomputed; each counter
// only when its option is set.
func (s *Service) refreshWithTx(tx *sql.Tx, p *model.Playlist, opts SaveOptions) error {
	if opts.RefreshNumSongs {
		n, err := s.playlists.CountSongsWithTx(tx, p.ID)
		if err != nil {
			return err
		}
		p.NumSongs = n
	}
	if opts.RefreshNumSubscribers {
		n, err := s.playlists.CountSubscribersWithTx(tx, p.ID)
		if err != nil {
			return err
		}
		p.NumSubscribers = n
	}

	cover, err := s.playlists.FirstSongAlbumIDWithTx(tx, p.ID)
	if err != nil {
		return err
	}
	p.CoverAlbumID = cover

	return s.playlists.UpdatePlaylistWithTx(tx, p)
}

func (s *Service) ownedPlaylist(userID, playlistID int64) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistByID(playlistID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return p, nil
}
