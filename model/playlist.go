package model

import (
	"database/sql"
	"time"
)

const (
	// DefaultPlaylistTitle is applied when a caller gives no usable title.
	DefaultPlaylistTitle = "a playlist"
	// PlaylistTitleMaxLen is the upper bound on a playlist title; longer
	// input is truncated, not rejected.
	PlaylistTitleMaxLen = 50
)

// Playlist is a user-owned, ordered collection of songs.
//
// NumSongs and NumSubscribers are denormalized counters refreshed from the
// true membership/subscription counts on save, unless a caller skips one
// refresh for a single save. CoverAlbumID is derived: the album of the
// first song in playlist order.
type Playlist struct {
	ID             int64         `json:"id"`
	OwnerID        int64         `json:"ownerId"`
	Title          string        `json:"title"`
	IsPublic       bool          `json:"isPublic"`
	CoverAlbumID   sql.NullInt64 `json:"coverAlbumId"`
	NumSongs       int           `json:"numSongs"`
	NumSubscribers int           `json:"numSubscribers"`
	DateAdded      time.Time     `json:"dateAdded"`
}

// PlaylistSong is a single (playlist, song, order) membership row. Order is
// zero-based, 0 being the highest rank. New rows are appended at
// max(order)+1 and removals leave gaps; playlist order is always computed
// by sorting, never by arithmetic on the stored value.
type PlaylistSong struct {
	ID         int64     `json:"id"`
	PlaylistID int64     `json:"playlistId"`
	SongID     int64     `json:"songId"`
	Order      int       `json:"order"`
	DateAdded  time.Time `json:"dateAdded"`
}
