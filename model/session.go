package model

// EphemeralPlaylist mirrors the external shape of a persisted playlist for
// visitors with no account: same id/title/count/cover fields, but the song
// list lives inline and the whole structure vanishes with the session. It
// has no owner and no subscribers.
type EphemeralPlaylist struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	SongIDs      []int64 `json:"songIds"`
	NumSongs     int     `json:"numSongs"`
	CoverAlbumID int64   `json:"coverAlbumId,omitempty"`
}
