package playlist

import "errors"

var (
	// ErrNotFound indicates the playlist or song does not exist.
	ErrNotFound = errors.New("playlist not found")

	// ErrNotOwner indicates the acting user does not own the playlist.
	ErrNotOwner = errors.New("not the playlist owner")
)
