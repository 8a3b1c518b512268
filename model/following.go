package model

import "time"

// Following is one directed edge in the follow graph: follower follows
// followed. The reverse direction, if it exists, is a separate row. The
// pair is unique and self-edges are never created.
type Following struct {
	ID         int64     `json:"id"`
	FollowerID int64     `json:"followerId"`
	FollowedID int64     `json:"followedId"`
	CreatedAt  time.Time `json:"createdAt"`
}
