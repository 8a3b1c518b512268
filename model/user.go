package model

import "time"

// User represents an account in the system.
//
// NumPlaylists, NumFollowers and NumFollowing are denormalized counters
// kept in step with the backing rows so profile pages never have to run
// count() queries. They are owned by the services that mutate the backing
// relationships; nothing else may write them.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	AvatarPath     string    `json:"avatarPath,omitempty"`
	CoverPath      string    `json:"coverPath,omitempty"`
	ActivityPublic bool      `json:"activityPublic"`
	NumPlaylists   int       `json:"numPlaylists"`
	NumFollowers   int       `json:"numFollowers"`
	NumFollowing   int       `json:"numFollowing"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
