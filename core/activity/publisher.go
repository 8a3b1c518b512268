package activity

import (
	"context"
	"encoding/json"
	"time"

	"noddymix/logger"
	"noddymix/metrics"
	"noddymix/model"
	"noddymix/repository"

	"github.com/go-redis/redis/v8"
)

// Notifier is the write side of the activity stream. Recording is
// best-effort by contract: a failed notification never fails the operation
// that triggered it, so Record returns nothing.
type Notifier interface {
	Record(ctx context.Context, actorID int64, verb string, object, target model.Ref)
}

// UserDirectory is the slice of the user repository feed assembly needs.
type UserDirectory interface {
	GetUserByID(id int64) (*model.User, error)
	FilterActivityPublic(userIDs []int64) ([]int64, error)
}

// SongDirectory resolves song references.
type SongDirectory interface {
	GetSongByID(id int64) (*model.Song, error)
}

// PlaylistDirectory resolves playlist references.
type PlaylistDirectory interface {
	GetPlaylistByID(id int64) (*model.Playlist, error)
}

// FollowGraph answers who a user follows.
type FollowGraph interface {
	FollowedIDs(userID int64) ([]int64, error)
}

// FeedItem is one rendered feed entry. Object and Target carry the
// resolved entity (a user, song or playlist) or nil when the reference is
// empty.
type FeedItem struct {
	ID        int64       `json:"id"`
	Actor     *model.User `json:"actor"`
	Verb      string      `json:"verb"`
	Object    interface{} `json:"object,omitempty"`
	Target    interface{} `json:"target,omitempty"`
	DateAdded time.Time   `json:"dateAdded"`
}

// Publisher stores activities and fans them out over Redis pub/sub for
// realtime delivery. Storage failures are logged and dropped; the stream
// is a byproduct of operations, never a participant in them.
type Publisher struct {
	activities repository.ActivityRepository
	users      UserDirectory
	songs      SongDirectory
	playlists  PlaylistDirectory
	following  FollowGraph
	redis      *redis.Client
	channel    string
	limit      int
}

// NewPublisher creates a Publisher. redisClient may be nil, which disables
// realtime fanout but keeps storage working.
func NewPublisher(
	activities repository.ActivityRepository,
	users UserDirectory,
	songs SongDirectory,
	playlists PlaylistDirectory,
	following FollowGraph,
	redisClient *redis.Client,
	channel string,
	limit int,
) *Publisher {
	return &Publisher{
		activities: activities,
		users:      users,
		songs:      songs,
		playlists:  playlists,
		following:  following,
		redis:      redisClient,
		channel:    channel,
		limit:      limit,
	}
}

// Record appends one activity and publishes it to the realtime channel.
// Anonymous actors (ID 0) are ignored.
func (p *Publisher) Record(ctx context.Context, actorID int64, verb string, object, target model.Ref) {
	if actorID == 0 {
		return
	}

	act := &model.Activity{
		ActorID:    actorID,
		Verb:       verb,
		ObjectKind: object.Kind,
		ObjectID:   object.ID,
		TargetKind: target.Kind,
		TargetID:   target.ID,
	}
	if err := p.activities.Create(ctx, act); err != nil {
		logger.Error("Failed to record activity",
			logger.Int64("actorID", actorID),
			logger.String("verb", verb),
			logger.ErrorField(err))
		return
	}
	metrics.ActivitiesRecorded.Inc()

	go p.publish(act)
}

// publish pushes one activity onto the pub/sub channel. Connection
// problems are logged and swallowed; subscribers fall back to polling the
// stored stream.
func (p *Publisher) publish(act *model.Activity) {
	if p.redis == nil {
		return
	}

	payload, err := json.Marshal(act)
	if err != nil {
		logger.Error("Failed to marshal activity for publish", logger.ErrorField(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.redis.Publish(ctx, p.channel, payload).Err(); err != nil {
		metrics.ActivityPublishFailures.Inc()
		logger.Warn("Failed to publish activity to Redis",
			logger.Int64("activityID", act.ID),
			logger.ErrorField(err))
	}
}

// Feed assembles the feed for one user: the newest activities of the
// people they follow, restricted to actors whose activity is public.
// Entries whose actor or references no longer resolve are dropped.
func (p *Publisher) Feed(ctx context.Context, userID int64, limit int) ([]*FeedItem, error) {
	if limit <= 0 || limit > p.limit {
		limit = p.limit
	}

	followed, err := p.following.FollowedIDs(userID)
	if err != nil {
		return nil, err
	}
	visible, err := p.users.FilterActivityPublic(followed)
	if err != nil {
		return nil, err
	}

	activities, err := p.activities.RecentByActors(ctx, visible, limit)
	if err != nil {
		return nil, err
	}
	return p.render(activities)
}

// ProfileFeed assembles one user's own activity history, for display on
// their profile. Privacy filtering is the caller's concern; a user always
// sees their own history.
func (p *Publisher) ProfileFeed(ctx context.Context, actorID int64, limit int) ([]*FeedItem, error) {
	if limit <= 0 || limit > p.limit {
		limit = p.limit
	}
	activities, err := p.activities.RecentByActor(ctx, actorID, limit)
	if err != nil {
		return nil, err
	}
	return p.render(activities)
}

// PurgeActor removes a departing user's activity history. The activity
// stream sits outside the relational cascade and is cleaned up here.
func (p *Publisher) PurgeActor(ctx context.Context, actorID int64) error {
	return p.activities.DeleteByActor(ctx, actorID)
}

func (p *Publisher) render(activities []*model.Activity) ([]*FeedItem, error) {
	items := make([]*FeedItem, 0, len(activities))
	for _, act := range activities {
		actor, err := p.users.GetUserByID(act.ActorID)
		if err != nil {
			return nil, err
		}
		if actor == nil {
			continue
		}

		object, ok, err := p.resolveRef(act.Object())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		target, ok, err := p.resolveRef(act.Target())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		items = append(items, &FeedItem{
			ID:        act.ID,
			Actor:     actor,
			Verb:      act.Verb,
			Object:    object,
			Target:    target,
			DateAdded: act.DateAdded,
		})
	}
	return items, nil
}

// resolveRef looks up the entity a reference points at. The second return
// is false when the reference is set but the entity is gone, which marks
// the activity as stale.
func (p *Publisher) resolveRef(ref model.Ref) (interface{}, bool, error) {
	switch ref.Kind {
	case model.RefNone:
		return nil, true, nil
	case model.RefUser:
		u, err := p.users.GetUserByID(ref.ID)
		if err != nil {
			return nil, false, err
		}
		return u, u != nil, nil
	case model.RefSong:
		s, err := p.songs.GetSongByID(ref.ID)
		if err != nil {
			return nil, false, err
		}
		return s, s != nil, nil
	case model.RefPlaylist:
		pl, err := p.playlists.GetPlaylistByID(ref.ID)
		if err != nil {
			return nil, false, err
		}
		return pl, pl != nil, nil
	default:
		return nil, false, nil
	}
}
