package playlist

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"noddymix/model"
	"noddymix/repository"
)

// --- fakes ---

type fakeNotifier struct {
	verbs []string
}

func (n *fakeNotifier) Record(ctx context.Context, actorID int64, verb string, object, target model.Ref) {
	n.verbs = append(n.verbs, verb)
}

type fakeUserRepo struct {
	users map[int64]*model.User
}

func (r *fakeUserRepo) CreateUser(u *model.User) (int64, error)        { return 0, nil }
func (r *fakeUserRepo) GetUserByID(id int64) (*model.User, error)      { return r.users[id], nil }
func (r *fakeUserRepo) GetUserByUsername(string) (*model.User, error)  { return nil, nil }
func (r *fakeUserRepo) UpdateUserProfile(*model.User) error            { return nil }
func (r *fakeUserRepo) FilterActivityPublic(ids []int64) ([]int64, error) {
	return ids, nil
}
func (r *fakeUserRepo) AdjustNumPlaylistsWithTx(tx *sql.Tx, userID int64, delta int) error {
	r.users[userID].NumPlaylists += delta
	return nil
}
func (r *fakeUserRepo) AdjustNumFollowersWithTx(tx *sql.Tx, userID int64, delta int) error {
	r.users[userID].NumFollowers += delta
	return nil
}
func (r *fakeUserRepo) AdjustNumFollowingWithTx(tx *sql.Tx, userID int64, delta int) error {
	r.users[userID].NumFollowing += delta
	return nil
}
func (r *fakeUserRepo) DeleteUserWithTx(tx *sql.Tx, userID int64) error {
	delete(r.users, userID)
	return nil
}
func (r *fakeUserRepo) BeginTx() (*sql.Tx, error) { return nil, nil }
func (r *fakeUserRepo) RollbackTx(tx *sql.Tx)     {}
func (r *fakeUserRepo) CommitTx(tx *sql.Tx) error { return nil }

type fakeSongRepo struct {
	songs     map[int64]*model.Song
	playlists *fakePlaylistRepo
}

func (r *fakeSongRepo) BeginTx() (*sql.Tx, error) { return nil, nil }
func (r *fakeSongRepo) RollbackTx(tx *sql.Tx)     {}
func (r *fakeSongRepo) CommitTx(tx *sql.Tx) error { return nil }

func (r *fakeSongRepo) CreateSong(*model.Song) (int64, error) { return 0, nil }
func (r *fakeSongRepo) GetSongByID(id int64) (*model.Song, error) {
	return r.songs[id], nil
}
func (r *fakeSongRepo) UpdateSongAudio(int64, string) error          { return nil }
func (r *fakeSongRepo) UpdateSongLength(int64, int) error            { return nil }
func (r *fakeSongRepo) SongsMissingLength() ([]*model.Song, error)   { return nil, nil }
func (r *fakeSongRepo) DeleteSongWithTx(tx *sql.Tx, songID int64) error {
	delete(r.songs, songID)
	// Membership rows cascade with the song.
	kept := r.playlists.memberships[:0]
	for _, m := range r.playlists.memberships {
		if m.SongID != songID {
			kept = append(kept, m)
		}
	}
	r.playlists.memberships = kept
	return nil
}
func (r *fakeSongRepo) NewReleases(time.Time, int) ([]*model.Song, error) { return nil, nil }
func (r *fakeSongRepo) CreateArtist(*model.Artist) (int64, error)         { return 0, nil }
func (r *fakeSongRepo) GetArtistByName(string) (*model.Artist, error)     { return nil, nil }
func (r *fakeSongRepo) CreateAlbum(*model.Album) (int64, error)           { return 0, nil }
func (r *fakeSongRepo) GetAlbumByID(int64) (*model.Album, error)          { return nil, nil }
func (r *fakeSongRepo) UpdateAlbumArt(int64, string) error                { return nil }
func (r *fakeSongRepo) IncrementNumPlaysWithTx(*sql.Tx, int64) error      { return nil }
func (r *fakeSongRepo) CreateSongPlayWithTx(*sql.Tx, int64, time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeSongRepo) PlayStatsSince(time.Time) ([]repository.PlayStats, error) { return nil, nil }
func (r *fakeSongRepo) ReplaceRanks([]model.SongRank) error                      { return nil }
func (r *fakeSongRepo) TopRanked(int) ([]repository.RankedSong, error)           { return nil, nil }

type fakePlaylistRepo struct {
	playlists        map[int64]*model.Playlist
	memberships      []*model.PlaylistSong
	subscribers      map[int64]map[int64]bool
	songs            *fakeSongRepo
	nextPlaylistID   int64
	nextMembershipID int64
}

func newFixture() (*fakePlaylistRepo, *fakeUserRepo, *fakeSongRepo, *fakeNotifier) {
	songs := &fakeSongRepo{songs: make(map[int64]*model.Song)}
	playlists := &fakePlaylistRepo{
		playlists:   make(map[int64]*model.Playlist),
		subscribers: make(map[int64]map[int64]bool),
		songs:       songs,
	}
	songs.playlists = playlists
	users := &fakeUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Username: "nceruchalu"},
		2: {ID: 2, Username: "nkemka"},
	}}
	return playlists, users, songs, &fakeNotifier{}
}

func (r *fakePlaylistRepo) BeginTx() (*sql.Tx, error) { return nil, nil }
func (r *fakePlaylistRepo) RollbackTx(tx *sql.Tx)     {}
func (r *fakePlaylistRepo) CommitTx(tx *sql.Tx) error { return nil }

func (r *fakePlaylistRepo) CreatePlaylistWithTx(tx *sql.Tx, p *model.Playlist) (int64, error) {
	r.nextPlaylistID++
	stored := *p
	stored.ID = r.nextPlaylistID
	stored.DateAdded = time.Now()
	r.playlists[stored.ID] = &stored
	return stored.ID, nil
}

func (r *fakePlaylistRepo) GetPlaylistByID(id int64) (*model.Playlist, error) {
	p, ok := r.playlists[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlaylistRepo) UpdatePlaylistWithTx(tx *sql.Tx, p *model.Playlist) error {
	stored, ok := r.playlists[p.ID]
	if !ok {
		return nil
	}
	stored.Title = p.Title
	stored.IsPublic = p.IsPublic
	stored.CoverAlbumID = p.CoverAlbumID
	stored.NumSongs = p.NumSongs
	stored.NumSubscribers = p.NumSubscribers
	return nil
}

func (r *fakePlaylistRepo) UpdateCoverWithTx(tx *sql.Tx, playlistID int64, cover sql.NullInt64) error {
	if p, ok := r.playlists[playlistID]; ok {
		p.CoverAlbumID = cover
	}
	return nil
}

func (r *fakePlaylistRepo) DeletePlaylistWithTx(tx *sql.Tx, id int64) error {
	delete(r.playlists, id)
	kept := r.memberships[:0]
	for _, m := range r.memberships {
		if m.PlaylistID != id {
			kept = append(kept, m)
		}
	}
	r.memberships = kept
	delete(r.subscribers, id)
	return nil
}

func (r *fakePlaylistRepo) PlaylistsByOwner(ownerID int64, limit, offset int) ([]*model.Playlist, error) {
	out := make([]*model.Playlist, 0)
	for _, p := range r.playlists {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateAdded.After(out[j].DateAdded) })
	if offset >= len(out) {
		return []*model.Playlist{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakePlaylistRepo) GetMembershipWithTx(tx *sql.Tx, playlistID, songID int64) (*model.PlaylistSong, error) {
	for _, m := range r.memberships {
		if m.PlaylistID == playlistID && m.SongID == songID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakePlaylistRepo) MaxOrderWithTx(tx *sql.Tx, playlistID int64) (int, bool, error) {
	max, found := 0, false
	for _, m := range r.memberships {
		if m.PlaylistID == playlistID && (!found || m.Order > max) {
			max, found = m.Order, true
		}
	}
	return max, found, nil
}

func (r *fakePlaylistRepo) CreateMembershipWithTx(tx *sql.Tx, m *model.PlaylistSong) (int64, error) {
	r.nextMembershipID++
	stored := *m
	stored.ID = r.nextMembershipID
	stored.DateAdded = time.Now()
	r.memberships = append(r.memberships, &stored)
	return stored.ID, nil
}

func (r *fakePlaylistRepo) UpdateMembershipOrderWithTx(tx *sql.Tx, membershipID int64, order int) error {
	for _, m := range r.memberships {
		if m.ID == membershipID {
			m.Order = order
		}
	}
	return nil
}

func (r *fakePlaylistRepo) DeleteMembershipsWithTx(tx *sql.Tx, playlistID int64, songIDs []int64) (int64, error) {
	drop := make(map[int64]bool, len(songIDs))
	for _, id := range songIDs {
		drop[id] = true
	}
	var removed int64
	kept := r.memberships[:0]
	for _, m := range r.memberships {
		if m.PlaylistID == playlistID && drop[m.SongID] {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	r.memberships = kept
	return removed, nil
}

// orderedMemberships sorts a playlist's memberships the way the SQL read
// does: order ascending, then song date_added descending.
func (r *fakePlaylistRepo) orderedMemberships(playlistID int64) []*model.PlaylistSong {
	out := make([]*model.PlaylistSong, 0)
	for _, m := range r.memberships {
		if m.PlaylistID == playlistID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		si, sj := r.songs.songs[out[i].SongID], r.songs.songs[out[j].SongID]
		return si.DateAdded.After(sj.DateAdded)
	})
	return out
}

func (r *fakePlaylistRepo) MembershipsByPlaylistWithTx(tx *sql.Tx, playlistID int64) ([]*model.PlaylistSong, error) {
	out := make([]*model.PlaylistSong, 0)
	for _, m := range r.memberships {
		if m.PlaylistID == playlistID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *fakePlaylistRepo) MembershipsBySongWithTx(tx *sql.Tx, songID int64) ([]*model.PlaylistSong, error) {
	out := make([]*model.PlaylistSong, 0)
	for _, m := range r.memberships {
		if m.SongID == songID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakePlaylistRepo) OrderedSongs(playlistID int64, limit, offset int) ([]*model.Song, error) {
	ordered := r.orderedMemberships(playlistID)
	if offset >= len(ordered) {
		return []*model.Song{}, nil
	}
	ordered = ordered[offset:]
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	songs := make([]*model.Song, 0, len(ordered))
	for _, m := range ordered {
		songs = append(songs, r.songs.songs[m.SongID])
	}
	return songs, nil
}

func (r *fakePlaylistRepo) FirstSongAlbumIDWithTx(tx *sql.Tx, playlistID int64) (sql.NullInt64, error) {
	ordered := r.orderedMemberships(playlistID)
	if len(ordered) == 0 {
		return sql.NullInt64{}, nil
	}
	song := r.songs.songs[ordered[0].SongID]
	return sql.NullInt64{Int64: song.AlbumID, Valid: true}, nil
}

func (r *fakePlaylistRepo) CountSongsWithTx(tx *sql.Tx, playlistID int64) (int, error) {
	n := 0
	for _, m := range r.memberships {
		if m.PlaylistID == playlistID {
			n++
		}
	}
	return n, nil
}

func (r *fakePlaylistRepo) AdjustNumSongsWithTx(tx *sql.Tx, playlistID int64, delta int) error {
	if p, ok := r.playlists[playlistID]; ok {
		p.NumSongs += delta
	}
	return nil
}

func (r *fakePlaylistRepo) AddSubscriberWithTx(tx *sql.Tx, playlistID, userID int64) (bool, error) {
	if r.subscribers[playlistID] == nil {
		r.subscribers[playlistID] = make(map[int64]bool)
	}
	if r.subscribers[playlistID][userID] {
		return false, nil
	}
	r.subscribers[playlistID][userID] = true
	return true, nil
}

func (r *fakePlaylistRepo) RemoveSubscriberWithTx(tx *sql.Tx, playlistID, userID int64) (bool, error) {
	if !r.subscribers[playlistID][userID] {
		return false, nil
	}
	delete(r.subscribers[playlistID], userID)
	return true, nil
}

func (r *fakePlaylistRepo) CountSubscribersWithTx(tx *sql.Tx, playlistID int64) (int, error) {
	return len(r.subscribers[playlistID]), nil
}

func (r *fakePlaylistRepo) AdjustNumSubscribersWithTx(tx *sql.Tx, playlistID int64, delta int) error {
	if p, ok := r.playlists[playlistID]; ok {
		p.NumSubscribers += delta
	}
	return nil
}

func (r *fakePlaylistRepo) SubscriptionsByUserWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	ids := make([]int64, 0)
	for playlistID, subs := range r.subscribers {
		if subs[userID] {
			ids = append(ids, playlistID)
		}
	}
	return ids, nil
}

func addSong(songs *fakeSongRepo, id, albumID int64, addedAgo time.Duration) {
	songs.songs[id] = &model.Song{
		ID:        id,
		Title:     "song",
		ArtistID:  1,
		AlbumID:   albumID,
		DateAdded: time.Now().Add(-addedAgo),
	}
}

func newTestService(perPage int) (*Service, *fakePlaylistRepo, *fakeUserRepo, *fakeSongRepo, *fakeNotifier) {
	playlists, users, songs, notifier := newFixture()
	return NewService(playlists, users, songs, notifier, perPage), playlists, users, songs, notifier
}

// --- tests ---

func TestCreatePlaylistNormalizesTitleAndBumpsCounter(t *testing.T) {
	svc, _, users, _, notifier := newTestService(20)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"empty title gets default", "", model.DefaultPlaylistTitle},
		{"whitespace title gets default", "   ", model.DefaultPlaylistTitle},
		{"plain title kept", "road trip", "road trip"},
		{"long title truncated", strings.Repeat("x", 80), strings.Repeat("x", 50)},
		{"multi-byte title truncated on a rune boundary", strings.Repeat("\U0001F3B5", 60), strings.Repeat("\U0001F3B5", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.CreatePlaylist(ctx, 1, tt.title, true)
			if err != nil {
				t.Fatalf("CreatePlaylist: %v", err)
			}
			if p.Title != tt.want {
				t.Errorf("title = %q, want %q", p.Title, tt.want)
			}
			if !utf8.ValidString(p.Title) {
				t.Errorf("title %q is not valid UTF-8", p.Title)
			}
		})
	}

	if got := users.users[1].NumPlaylists; got != len(tests) {
		t.Errorf("owner num_playlists = %d, want %d", got, len(tests))
	}
	if len(notifier.verbs) != len(tests) {
		t.Errorf("recorded %d activities, want %d", len(notifier.verbs), len(tests))
	}
}

func TestAddSongsAppendsAndIsIdempotent(t *testing.T) {
	svc, playlists, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 10, 100, 3*time.Hour)
	addSong(songs, 11, 101, 2*time.Hour)
	addSong(songs, 12, 102, time.Hour)

	p, err := svc.CreatePlaylist(ctx, 1, "mix", true)
	if err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}

	if _, err := svc.AddSongs(ctx, 1, p.ID, []int64{10, 11}); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	// A second add of song 10 must change nothing; 12 lands at the end.
	got, err := svc.AddSongs(ctx, 1, p.ID, []int64{10, 12})
	if err != nil {
		t.Fatalf("AddSongs: %v", err)
	}

	if got.NumSongs != 3 {
		t.Errorf("num_songs = %d, want 3", got.NumSongs)
	}
	ordered, err := svc.OrderedSongs(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("OrderedSongs: %v", err)
	}
	wantOrder := []int64{10, 11, 12}
	for i, s := range ordered {
		if s.ID != wantOrder[i] {
			t.Errorf("position %d = song %d, want %d", i, s.ID, wantOrder[i])
		}
	}
	// Cover follows the first song in order.
	if !got.CoverAlbumID.Valid || got.CoverAlbumID.Int64 != 100 {
		t.Errorf("cover = %+v, want album 100", got.CoverAlbumID)
	}
	// Counter equals the true membership count.
	n, _ := playlists.CountSongsWithTx(nil, p.ID)
	if got.NumSongs != n {
		t.Errorf("num_songs = %d, true count = %d", got.NumSongs, n)
	}
}

func TestAddSongsSkipsUnknownSongs(t *testing.T) {
	svc, _, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 10, 100, time.Hour)

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	got, err := svc.AddSongs(ctx, 1, p.ID, []int64{10, 999})
	if err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	if got.NumSongs != 1 {
		t.Errorf("num_songs = %d, want 1", got.NumSongs)
	}
}

func TestReorderSingleGroup(t *testing.T) {
	svc, _, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 1, 100, 3*time.Hour) // A
	addSong(songs, 2, 101, 2*time.Hour) // B
	addSong(songs, 3, 102, time.Hour)   // C

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	if _, err := svc.AddSongs(ctx, 1, p.ID, []int64{1, 2, 3}); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}

	got, err := svc.Reorder(ctx, 1, p.ID, 1, []int64{3, 1, 2})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	ordered, _ := svc.OrderedSongs(ctx, p.ID, 1)
	wantOrder := []int64{3, 1, 2}
	for i, s := range ordered {
		if s.ID != wantOrder[i] {
			t.Errorf("position %d = song %d, want %d", i, s.ID, wantOrder[i])
		}
	}
	// Cover moved with the new first song.
	if !got.CoverAlbumID.Valid || got.CoverAlbumID.Int64 != 102 {
		t.Errorf("cover = %+v, want album 102", got.CoverAlbumID)
	}
}

func TestReorderSkipsStaleIDs(t *testing.T) {
	svc, _, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 1, 100, 2*time.Hour)
	addSong(songs, 2, 101, time.Hour)

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	svc.AddSongs(ctx, 1, p.ID, []int64{1, 2})

	// Song 99 was never in the playlist; it must be skipped, not error.
	if _, err := svc.Reorder(ctx, 1, p.ID, 1, []int64{2, 99, 1}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	ordered, _ := svc.OrderedSongs(ctx, p.ID, 1)
	if ordered[0].ID != 2 || ordered[1].ID != 1 {
		t.Errorf("order = [%d, %d], want [2, 1]", ordered[0].ID, ordered[1].ID)
	}
}

func TestReorderSecondPageLeavesFirstPageAlone(t *testing.T) {
	svc, _, _, songs, _ := newTestService(2)
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		addSong(songs, i, 100+i, time.Duration(5-i)*time.Hour)
	}

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	if _, err := svc.AddSongs(ctx, 1, p.ID, []int64{1, 2, 3, 4}); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}

	// Swap the two songs on page 2.
	if _, err := svc.Reorder(ctx, 1, p.ID, 2, []int64{4, 3}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	page1, _ := svc.OrderedSongs(ctx, p.ID, 1)
	if page1[0].ID != 1 || page1[1].ID != 2 {
		t.Errorf("page 1 = [%d, %d], want [1, 2]", page1[0].ID, page1[1].ID)
	}
	page2, _ := svc.OrderedSongs(ctx, p.ID, 2)
	if page2[0].ID != 4 || page2[1].ID != 3 {
		t.Errorf("page 2 = [%d, %d], want [4, 3]", page2[0].ID, page2[1].ID)
	}
}

func TestOrderTiesBrokenByNewestSong(t *testing.T) {
	svc, playlists, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 1, 100, 2*time.Hour) // older
	addSong(songs, 2, 101, time.Hour)   // newer

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	// Force equal order values, as left behind by concurrent appends.
	playlists.CreateMembershipWithTx(nil, &model.PlaylistSong{PlaylistID: p.ID, SongID: 1, Order: 0})
	playlists.CreateMembershipWithTx(nil, &model.PlaylistSong{PlaylistID: p.ID, SongID: 2, Order: 0})

	ordered, err := svc.OrderedSongs(ctx, p.ID, 1)
	if err != nil {
		t.Fatalf("OrderedSongs: %v", err)
	}
	if ordered[0].ID != 2 || ordered[1].ID != 1 {
		t.Errorf("order = [%d, %d], want newer song 2 first", ordered[0].ID, ordered[1].ID)
	}
}

func TestRemoveSongsLeavesGapsAndRefreshesCounter(t *testing.T) {
	svc, playlists, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 1, 100, 3*time.Hour)
	addSong(songs, 2, 101, 2*time.Hour)
	addSong(songs, 3, 102, time.Hour)

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	svc.AddSongs(ctx, 1, p.ID, []int64{1, 2, 3})

	got, err := svc.RemoveSongs(ctx, 1, p.ID, []int64{2})
	if err != nil {
		t.Fatalf("RemoveSongs: %v", err)
	}
	if got.NumSongs != 2 {
		t.Errorf("num_songs = %d, want 2", got.NumSongs)
	}
	// Survivors keep their order values; the gap at 1 remains.
	remaining, _ := playlists.MembershipsByPlaylistWithTx(nil, p.ID)
	if remaining[0].Order != 0 || remaining[1].Order != 2 {
		t.Errorf("orders = [%d, %d], want [0, 2]", remaining[0].Order, remaining[1].Order)
	}
	// Removing an absent song is a no-op.
	again, err := svc.RemoveSongs(ctx, 1, p.ID, []int64{2})
	if err != nil {
		t.Fatalf("RemoveSongs: %v", err)
	}
	if again.NumSongs != 2 {
		t.Errorf("num_songs after no-op removal = %d, want 2", again.NumSongs)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	svc, _, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 1, 100, time.Hour)

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	if _, err := svc.AddSongs(ctx, 2, p.ID, []int64{1}); err != ErrNotOwner {
		t.Errorf("AddSongs by non-owner: err = %v, want ErrNotOwner", err)
	}
	if err := svc.DeletePlaylist(ctx, 2, p.ID); err != ErrNotOwner {
		t.Errorf("DeletePlaylist by non-owner: err = %v, want ErrNotOwner", err)
	}
	if _, err := svc.RenamePlaylist(ctx, 1, 999, "x"); err != ErrNotFound {
		t.Errorf("RenamePlaylist of missing playlist: err = %v, want ErrNotFound", err)
	}
}

func TestSubscribeIsIdempotentAndSkipsOwner(t *testing.T) {
	svc, _, _, _, notifier := newTestService(20)
	ctx := context.Background()

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	recordedBefore := len(notifier.verbs)

	// The owner subscribing to their own playlist changes nothing.
	got, err := svc.Subscribe(ctx, 1, p.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got.NumSubscribers != 0 {
		t.Errorf("num_subscribers after owner subscribe = %d, want 0", got.NumSubscribers)
	}

	got, err = svc.Subscribe(ctx, 2, p.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got.NumSubscribers != 1 {
		t.Errorf("num_subscribers = %d, want 1", got.NumSubscribers)
	}
	// Double subscribe is a no-op and records no second activity.
	got, err = svc.Subscribe(ctx, 2, p.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got.NumSubscribers != 1 {
		t.Errorf("num_subscribers after double subscribe = %d, want 1", got.NumSubscribers)
	}
	if len(notifier.verbs) != recordedBefore+1 {
		t.Errorf("recorded %d activities, want %d", len(notifier.verbs)-recordedBefore, 1)
	}

	got, err = svc.Unsubscribe(ctx, 2, p.ID)
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if got.NumSubscribers != 0 {
		t.Errorf("num_subscribers after unsubscribe = %d, want 0", got.NumSubscribers)
	}
	// Unsubscribing when not subscribed is a no-op.
	if _, err = svc.Unsubscribe(ctx, 2, p.ID); err != nil {
		t.Fatalf("Unsubscribe no-op: %v", err)
	}
}

func TestDeleteSongCascadesThroughPlaylists(t *testing.T) {
	svc, playlists, _, songs, _ := newTestService(20)
	ctx := context.Background()
	addSong(songs, 1, 100, 2*time.Hour)
	addSong(songs, 2, 101, time.Hour)

	p1, _ := svc.CreatePlaylist(ctx, 1, "one", true)
	p2, _ := svc.CreatePlaylist(ctx, 1, "two", true)
	svc.AddSongs(ctx, 1, p1.ID, []int64{1, 2})
	svc.AddSongs(ctx, 1, p2.ID, []int64{1})

	// Set the subscriber counter out of step with the subscription rows.
	// The cascade must leave it alone; a full counter refresh would reset
	// it to zero.
	playlists.playlists[p1.ID].NumSubscribers = 5

	if err := svc.DeleteSong(ctx, 1); err != nil {
		t.Fatalf("DeleteSong: %v", err)
	}

	got1, _ := playlists.GetPlaylistByID(p1.ID)
	if got1.NumSongs != 1 {
		t.Errorf("playlist 1 num_songs = %d, want 1", got1.NumSongs)
	}
	if got1.NumSubscribers != 5 {
		t.Errorf("playlist 1 num_subscribers = %d, want 5 untouched", got1.NumSubscribers)
	}
	// Cover recomputed from the surviving first song.
	if !got1.CoverAlbumID.Valid || got1.CoverAlbumID.Int64 != 101 {
		t.Errorf("playlist 1 cover = %+v, want album 101", got1.CoverAlbumID)
	}
	got2, _ := playlists.GetPlaylistByID(p2.ID)
	if got2.NumSongs != 0 {
		t.Errorf("playlist 2 num_songs = %d, want 0", got2.NumSongs)
	}
	if got2.CoverAlbumID.Valid {
		t.Errorf("playlist 2 cover = %+v, want none", got2.CoverAlbumID)
	}

	if err := svc.DeleteSong(ctx, 1); err != ErrNotFound {
		t.Errorf("deleting a missing song: err = %v, want ErrNotFound", err)
	}
}

func TestDeletePlaylistDecrementsOwnerCounter(t *testing.T) {
	svc, _, users, _, _ := newTestService(20)
	ctx := context.Background()

	p, _ := svc.CreatePlaylist(ctx, 1, "mix", true)
	if users.users[1].NumPlaylists != 1 {
		t.Fatalf("num_playlists = %d, want 1", users.users[1].NumPlaylists)
	}
	if err := svc.DeletePlaylist(ctx, 1, p.ID); err != nil {
		t.Fatalf("DeletePlaylist: %v", err)
	}
	if users.users[1].NumPlaylists != 0 {
		t.Errorf("num_playlists = %d, want 0", users.users[1].NumPlaylists)
	}
}
