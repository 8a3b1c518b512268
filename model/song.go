package model

import "time"

// Artist is a musician credited on songs, either as the primary artist or
// as a featured one.
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Album groups songs and carries the art used as cover imagery. Every song
// hangs off an album even if the album is just a single.
type Album struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	ArtPath   string    `json:"artPath,omitempty"` // object key in the asset store
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Song is the unit of playback.
//
// NumPlays is the lifetime play counter, incremented in the same
// transaction that records the SongPlay row. Length is in seconds, derived
// from the audio payload.
type Song struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ArtistID    int64     `json:"artistId"`
	AlbumID     int64     `json:"albumId"`
	AudioPath   string    `json:"-"` // object key in the asset store
	NumPlays    int64     `json:"numPlays"`
	Length      int       `json:"length"` // seconds
	DateAdded   time.Time `json:"dateAdded"`
	FeaturingID []int64   `json:"featuringIds,omitempty"`
}

// SongPlay is one play event, across authenticated and anonymous
// listeners. The log is the ground truth the ranking cache is rebuilt from.
type SongPlay struct {
	ID        int64     `json:"id"`
	SongID    int64     `json:"songId"`
	DateAdded time.Time `json:"dateAdded"`
}

// SongRank caches a song's decayed popularity score. It is derived data:
// it can be dropped and rebuilt from the play log at any time.
type SongRank struct {
	SongID int64   `json:"songId"`
	Score  float64 `json:"score"`
}
