package relationship

import (
	"context"
	"database/sql"
	"errors"

	"noddymix/core/activity"
	"noddymix/logger"
	"noddymix/metrics"
	"noddymix/model"
	"noddymix/repository"
)

// ErrUserNotFound indicates the user a relationship operation refers to
// does not exist.
var ErrUserNotFound = errors.New("user not found")

// Purger removes a user's entries from the activity stream when their
// account goes away.
type Purger interface {
	PurgeActor(ctx context.Context, actorID int64) error
}

// SubscriptionStore is the slice of the playlist repository the account
// deletion cascade needs.
type SubscriptionStore interface {
	SubscriptionsByUserWithTx(tx *sql.Tx, userID int64) ([]int64, error)
	AdjustNumSubscribersWithTx(tx *sql.Tx, playlistID int64, delta int) error
}

// Service maintains the follow graph and the denormalized follower
// counters, and runs the account deletion cascade.
type Service struct {
	following repository.FollowingRepository
	users     repository.UserRepository
	playlists SubscriptionStore
	notifier  activity.Notifier
	purger    Purger
}

// NewService creates a relationship Service. purger may be nil, in which
// case deleted accounts leave their activity history behind.
func NewService(
	following repository.FollowingRepository,
	users repository.UserRepository,
	playlists SubscriptionStore,
	notifier activity.Notifier,
	purger Purger,
) *Service {
	return &Service{
		following: following,
		users:     users,
		playlists: playlists,
		notifier:  notifier,
		purger:    purger,
	}
}

// Follow makes followerID follow followedID. Following yourself or
// someone you already follow is a no-op, not an error.
func (s *Service) Follow(ctx context.Context, followerID, followedID int64) error {
	if followerID == followedID {
		return nil
	}

	followed, err := s.users.GetUserByID(followedID)
	if err != nil {
		return err
	}
	if followed == nil {
		return ErrUserNotFound
	}

	existing, err := s.following.GetFollowing(followerID, followedID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	tx, err := s.following.BeginTx()
	if err != nil {
		return err
	}
	defer s.following.RollbackTx(tx)

	if _, err := s.following.CreateFollowingWithTx(tx, followerID, followedID); err != nil {
		return err
	}
	if err := s.users.AdjustNumFollowingWithTx(tx, followerID, 1); err != nil {
		return err
	}
	if err := s.users.AdjustNumFollowersWithTx(tx, followedID, 1); err != nil {
		return err
	}
	if err := s.following.CommitTx(tx); err != nil {
		return err
	}

	metrics.Follows.Inc()
	s.notifier.Record(ctx, followerID, "followed", model.Ref{}, model.Ref{Kind: model.RefUser, ID: followedID})
	return nil
}

// Unfollow removes the follow edge from followerID to followedID.
// Unfollowing someone you don't follow is a no-op.
func (s *Service) Unfollow(ctx context.Context, followerID, followedID int64) error {
	tx, err := s.following.BeginTx()
	if err != nil {
		return err
	}
	defer s.following.RollbackTx(tx)

	removed, err := s.following.DeleteFollowingWithTx(tx, followerID, followedID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := s.users.AdjustNumFollowingWithTx(tx, followerID, -1); err != nil {
		return err
	}
	if err := s.users.AdjustNumFollowersWithTx(tx, followedID, -1); err != nil {
		return err
	}
	return s.following.CommitTx(tx)
}

// IsFollowing reports whether followerID follows followedID. An anonymous
// follower (ID 0) follows nobody.
func (s *Service) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	if followerID == 0 {
		return false, nil
	}
	edge, err := s.following.GetFollowing(followerID, followedID)
	if err != nil {
		return false, err
	}
	return edge != nil, nil
}

// DeleteUser removes an account. Before the row goes, every counter the
// account contributed to is walked back: the follower counts of everyone
// they followed, the following counts of everyone who followed them, and
// the subscriber counts of every playlist they subscribed to. The rows
// themselves cascade away in the database.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	tx, err := s.users.BeginTx()
	if err != nil {
		return err
	}
	defer s.users.RollbackTx(tx)

	followed, err := s.following.FollowedIDsWithTx(tx, userID)
	if err != nil {
		return err
	}
	for _, id := range followed {
		if err := s.users.AdjustNumFollowersWithTx(tx, id, -1); err != nil {
			return err
		}
	}

	followers, err := s.following.FollowerIDsWithTx(tx, userID)
	if err != nil {
		return err
	}
	for _, id := range followers {
		if err := s.users.AdjustNumFollowingWithTx(tx, id, -1); err != nil {
			return err
		}
	}

	subscriptions, err := s.playlists.SubscriptionsByUserWithTx(tx, userID)
	if err != nil {
		return err
	}
	for _, playlistID := range subscriptions {
		if err := s.playlists.AdjustNumSubscribersWithTx(tx, playlistID, -1); err != nil {
			return err
		}
	}

	if err := s.users.DeleteUserWithTx(tx, userID); err != nil {
		return err
	}
	if err := s.users.CommitTx(tx); err != nil {
		return err
	}

	if s.purger != nil {
		if err := s.purger.PurgeActor(ctx, userID); err != nil {
			logger.Warn("Failed to purge activity history for deleted user",
				logger.Int64("userID", userID),
				logger.ErrorField(err))
		}
	}
	return nil
}
