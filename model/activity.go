package model

import "time"

// RefKind tags the entity kind an activity reference points at. The set is
// closed; resolution is per-kind lookup, never open-ended.
type RefKind string

const (
	RefNone     RefKind = ""
	RefUser     RefKind = "user"
	RefSong     RefKind = "song"
	RefPlaylist RefKind = "playlist"
)

// Ref is a tagged reference to a user, song or playlist. The zero value
// means "no reference".
type Ref struct {
	Kind RefKind `json:"kind,omitempty"`
	ID   int64   `json:"id,omitempty"`
}

// IsZero reports whether the reference points at nothing.
func (r Ref) IsZero() bool {
	return r.Kind == RefNone
}

// Activity is one feed entry: actor acted out verb, optionally on an
// object, optionally to a target.
//
//	<actor> <verb>                      nceruchalu created a playlist
//	<actor> <verb> <target>             nkemka followed drkems
//	<actor> <verb> <object> <target>    drkems added kukere to playlist:1
type Activity struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ActorID    int64     `json:"actorId" gorm:"index"`
	Verb       string    `json:"verb" gorm:"size:255"`
	ObjectKind RefKind   `json:"objectKind" gorm:"size:16"`
	ObjectID   int64     `json:"objectId"`
	TargetKind RefKind   `json:"targetKind" gorm:"size:16"`
	TargetID   int64     `json:"targetId"`
	DateAdded  time.Time `json:"dateAdded" gorm:"index;autoCreateTime"`
}

// Object returns the activity's object reference.
func (a *Activity) Object() Ref {
	return Ref{Kind: a.ObjectKind, ID: a.ObjectID}
}

// Target returns the activity's target reference.
func (a *Activity) Target() Ref {
	return Ref{Kind: a.TargetKind, ID: a.TargetID}
}
