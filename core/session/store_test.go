package session

import (
	"context"
	"testing"

	"noddymix/model"
)

type memStore struct {
	sessions map[string]*Session
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (s *memStore) Get(ctx context.Context, id string) (*Session, error) {
	return s.sessions[id], nil
}

func (s *memStore) Save(ctx context.Context, sess *Session) error {
	s.sessions[sess.ID] = sess
	s.saves++
	return nil
}

type stubSongs struct {
	songs map[int64]*model.Song
}

func (s *stubSongs) GetSongByID(id int64) (*model.Song, error) {
	return s.songs[id], nil
}

func newTestManager() (*Manager, *memStore, *stubSongs) {
	store := newMemStore()
	songs := &stubSongs{songs: map[int64]*model.Song{
		1: {ID: 1, AlbumID: 100},
		2: {ID: 2, AlbumID: 101},
		3: {ID: 3, AlbumID: 102},
		4: {ID: 4, AlbumID: 103},
	}}
	return NewManager(store, songs, 2, 3), store, songs
}

func TestCreatePlaylistAssignsSequentialIDs(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	first, err := m.CreatePlaylist(ctx, "sess", "")
	if err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}
	if first.ID != 1 {
		t.Errorf("first ID = %d, want 1", first.ID)
	}
	if first.Title != model.DefaultPlaylistTitle {
		t.Errorf("title = %q, want default", first.Title)
	}

	second, _ := m.CreatePlaylist(ctx, "sess", "roadtrip")
	if second.ID != 2 {
		t.Errorf("second ID = %d, want 2", second.ID)
	}

	// IDs keep counting up from the highest survivor.
	if err := m.DeletePlaylist(ctx, "sess", 1); err != nil {
		t.Fatalf("DeletePlaylist: %v", err)
	}
	third, _ := m.CreatePlaylist(ctx, "sess", "x")
	if third.ID != 3 {
		t.Errorf("third ID = %d, want 3", third.ID)
	}

	// Sessions are isolated from each other.
	other, _ := m.CreatePlaylist(ctx, "other", "y")
	if other.ID != 1 {
		t.Errorf("other session first ID = %d, want 1", other.ID)
	}
}

func TestAddSongsDedupsAndDerivesCover(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	p, _ := m.CreatePlaylist(ctx, "sess", "mix")
	got, err := m.AddSongs(ctx, "sess", p.ID, []int64{1, 2, 1, 999})
	if err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	if got.NumSongs != 2 {
		t.Errorf("num_songs = %d, want 2", got.NumSongs)
	}
	if got.CoverAlbumID != 100 {
		t.Errorf("cover = %d, want 100", got.CoverAlbumID)
	}

	// Re-adding an existing song appends nothing.
	got, _ = m.AddSongs(ctx, "sess", p.ID, []int64{2, 3})
	if len(got.SongIDs) != 3 || got.SongIDs[2] != 3 {
		t.Errorf("song ids = %v, want [1 2 3]", got.SongIDs)
	}
}

func TestRemoveSongsRecomputesDerivedFields(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	p, _ := m.CreatePlaylist(ctx, "sess", "mix")
	m.AddSongs(ctx, "sess", p.ID, []int64{1, 2, 3})

	got, err := m.RemoveSongs(ctx, "sess", p.ID, []int64{1})
	if err != nil {
		t.Fatalf("RemoveSongs: %v", err)
	}
	if got.NumSongs != 2 {
		t.Errorf("num_songs = %d, want 2", got.NumSongs)
	}
	// Cover follows the new first song.
	if got.CoverAlbumID != 101 {
		t.Errorf("cover = %d, want 101", got.CoverAlbumID)
	}

	got, _ = m.RemoveSongs(ctx, "sess", p.ID, []int64{2, 3})
	if got.NumSongs != 0 || got.CoverAlbumID != 0 {
		t.Errorf("emptied playlist: num_songs=%d cover=%d, want 0/0", got.NumSongs, got.CoverAlbumID)
	}
}

func TestReorderReplacesOnePageOnly(t *testing.T) {
	m, _, _ := newTestManager() // 2 songs per page
	ctx := context.Background()

	p, _ := m.CreatePlaylist(ctx, "sess", "mix")
	m.AddSongs(ctx, "sess", p.ID, []int64{1, 2, 3, 4})

	got, err := m.ReorderSongs(ctx, "sess", p.ID, 2, []int64{4, 3})
	if err != nil {
		t.Fatalf("ReorderSongs: %v", err)
	}
	want := []int64{1, 2, 4, 3}
	for i, id := range got.SongIDs {
		if id != want[i] {
			t.Errorf("song ids = %v, want %v", got.SongIDs, want)
			break
		}
	}

	page1, _ := m.OrderedSongs(ctx, "sess", p.ID, 1)
	if page1[0].ID != 1 || page1[1].ID != 2 {
		t.Errorf("page 1 = [%d, %d], want [1, 2]", page1[0].ID, page1[1].ID)
	}
}

func TestDirtySessionsAreWrittenBack(t *testing.T) {
	m, store, _ := newTestManager()
	ctx := context.Background()

	p, _ := m.CreatePlaylist(ctx, "sess", "mix")
	saves := store.saves
	if saves == 0 {
		t.Fatal("creating a playlist did not persist the session")
	}

	// Pure reads don't write back.
	if _, err := m.GetPlaylist(ctx, "sess", p.ID); err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if _, err := m.Playlists(ctx, "sess"); err != nil {
		t.Fatalf("Playlists: %v", err)
	}
	if store.saves != saves {
		t.Errorf("reads wrote the session back: saves = %d, want %d", store.saves, saves)
	}

	if _, err := m.AddSongs(ctx, "sess", p.ID, []int64{1}); err != nil {
		t.Fatalf("AddSongs: %v", err)
	}
	if store.saves != saves+1 {
		t.Errorf("mutation did not write the session back")
	}
}

func TestHistoryDedupsAndCaps(t *testing.T) {
	m, store, _ := newTestManager() // history capped at 3
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 2, 4} {
		if err := m.RecordHistory(ctx, "sess", id); err != nil {
			t.Fatalf("RecordHistory: %v", err)
		}
	}

	sess := store.sessions["sess"]
	want := []int64{4, 2, 3}
	if len(sess.History) != len(want) {
		t.Fatalf("history = %v, want %v", sess.History, want)
	}
	for i, id := range sess.History {
		if id != want[i] {
			t.Errorf("history = %v, want %v", sess.History, want)
			break
		}
	}

	songs, err := m.RecentHistory(ctx, "sess")
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(songs) != 3 || songs[0].ID != 4 {
		t.Errorf("recent history starts with %d, want 4", songs[0].ID)
	}
}

func TestPlaylistsNewestFirst(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	m.CreatePlaylist(ctx, "sess", "one")
	m.CreatePlaylist(ctx, "sess", "two")

	all, err := m.Playlists(ctx, "sess")
	if err != nil {
		t.Fatalf("Playlists: %v", err)
	}
	if len(all) != 2 || all[0].Title != "two" || all[1].Title != "one" {
		t.Errorf("playlists out of order: %+v", all)
	}
}
