package relationship

import (
	"context"
	"database/sql"
	"testing"

	"noddymix/model"
)

type fakeNotifier struct {
	verbs []string
}

func (n *fakeNotifier) Record(ctx context.Context, actorID int64, verb string, object, target model.Ref) {
	n.verbs = append(n.verbs, verb)
}

type fakeUserRepo struct {
	users map[int64]*model.User
}

func (r *fakeUserRepo) CreateUser(*model.User) (int64, error)       { return 0, nil }
func (r *fakeUserRepo) GetUserByID(id int64) (*model.User, error)   { return r.users[id], nil }
func (r *fakeUserRepo) GetUserByUsername(string) (*model.User, error) { return nil, nil }
func (r *fakeUserRepo) UpdateUserProfile(*model.User) error         { return nil }
func (r *fakeUserRepo) FilterActivityPublic(ids []int64) ([]int64, error) {
	return ids, nil
}
func (r *fakeUserRepo) AdjustNumPlaylistsWithTx(tx *sql.Tx, userID int64, delta int) error {
	r.users[userID].NumPlaylists += delta
	return nil
}
func (r *fakeUserRepo) AdjustNumFollowersWithTx(tx *sql.Tx, userID int64, delta int) error {
	r.users[userID].NumFollowers += delta
	return nil
}
func (r *fakeUserRepo) AdjustNumFollowingWithTx(tx *sql.Tx, userID int64, delta int) error {
	r.users[userID].NumFollowing += delta
	return nil
}
func (r *fakeUserRepo) DeleteUserWithTx(tx *sql.Tx, userID int64) error {
	delete(r.users, userID)
	return nil
}
func (r *fakeUserRepo) BeginTx() (*sql.Tx, error) { return nil, nil }
func (r *fakeUserRepo) RollbackTx(tx *sql.Tx)     {}
func (r *fakeUserRepo) CommitTx(tx *sql.Tx) error { return nil }

type edge struct{ follower, followed int64 }

type fakeFollowingRepo struct {
	edges  map[edge]bool
	nextID int64
}

func (r *fakeFollowingRepo) BeginTx() (*sql.Tx, error) { return nil, nil }
func (r *fakeFollowingRepo) RollbackTx(tx *sql.Tx)     {}
func (r *fakeFollowingRepo) CommitTx(tx *sql.Tx) error { return nil }

func (r *fakeFollowingRepo) GetFollowing(followerID, followedID int64) (*model.Following, error) {
	if r.edges[edge{followerID, followedID}] {
		return &model.Following{FollowerID: followerID, FollowedID: followedID}, nil
	}
	return nil, nil
}

func (r *fakeFollowingRepo) CreateFollowingWithTx(tx *sql.Tx, followerID, followedID int64) (int64, error) {
	r.edges[edge{followerID, followedID}] = true
	r.nextID++
	return r.nextID, nil
}

func (r *fakeFollowingRepo) DeleteFollowingWithTx(tx *sql.Tx, followerID, followedID int64) (bool, error) {
	e := edge{followerID, followedID}
	if !r.edges[e] {
		return false, nil
	}
	delete(r.edges, e)
	return true, nil
}

func (r *fakeFollowingRepo) FollowerIDsWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	ids := make([]int64, 0)
	for e := range r.edges {
		if e.followed == userID {
			ids = append(ids, e.follower)
		}
	}
	return ids, nil
}

func (r *fakeFollowingRepo) FollowedIDsWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	return r.FollowedIDs(userID)
}

func (r *fakeFollowingRepo) FollowedIDs(userID int64) ([]int64, error) {
	ids := make([]int64, 0)
	for e := range r.edges {
		if e.follower == userID {
			ids = append(ids, e.followed)
		}
	}
	return ids, nil
}

type fakeSubscriptions struct {
	byUser      map[int64][]int64
	subCounters map[int64]int
}

func (r *fakeSubscriptions) SubscriptionsByUserWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	return r.byUser[userID], nil
}

func (r *fakeSubscriptions) AdjustNumSubscribersWithTx(tx *sql.Tx, playlistID int64, delta int) error {
	r.subCounters[playlistID] += delta
	return nil
}

type fakePurger struct {
	purged []int64
}

func (p *fakePurger) PurgeActor(ctx context.Context, actorID int64) error {
	p.purged = append(p.purged, actorID)
	return nil
}

func newTestService() (*Service, *fakeFollowingRepo, *fakeUserRepo, *fakeSubscriptions, *fakePurger, *fakeNotifier) {
	following := &fakeFollowingRepo{edges: make(map[edge]bool)}
	users := &fakeUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Username: "nceruchalu"},
		2: {ID: 2, Username: "nkemka"},
		3: {ID: 3, Username: "drkems"},
	}}
	subs := &fakeSubscriptions{byUser: make(map[int64][]int64), subCounters: make(map[int64]int)}
	purger := &fakePurger{}
	notifier := &fakeNotifier{}
	return NewService(following, users, subs, notifier, purger), following, users, subs, purger, notifier
}

func TestFollowAdjustsBothCounters(t *testing.T) {
	svc, _, users, _, _, notifier := newTestService()
	ctx := context.Background()

	if err := svc.Follow(ctx, 1, 2); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if users.users[1].NumFollowing != 1 {
		t.Errorf("follower num_following = %d, want 1", users.users[1].NumFollowing)
	}
	if users.users[2].NumFollowers != 1 {
		t.Errorf("followed num_followers = %d, want 1", users.users[2].NumFollowers)
	}
	following, err := svc.IsFollowing(ctx, 1, 2)
	if err != nil || !following {
		t.Errorf("IsFollowing(1, 2) = %v, %v, want true", following, err)
	}
	if len(notifier.verbs) != 1 || notifier.verbs[0] != "followed" {
		t.Errorf("recorded verbs = %v, want [followed]", notifier.verbs)
	}
}

func TestFollowIsIdempotent(t *testing.T) {
	svc, _, users, _, _, _ := newTestService()
	ctx := context.Background()

	svc.Follow(ctx, 1, 2)
	if err := svc.Follow(ctx, 1, 2); err != nil {
		t.Fatalf("Follow twice: %v", err)
	}
	if users.users[2].NumFollowers != 1 {
		t.Errorf("num_followers after double follow = %d, want 1", users.users[2].NumFollowers)
	}
}

func TestFollowSelfIsNoOp(t *testing.T) {
	svc, following, users, _, _, _ := newTestService()

	if err := svc.Follow(context.Background(), 1, 1); err != nil {
		t.Fatalf("Follow self: %v", err)
	}
	if len(following.edges) != 0 {
		t.Errorf("edges = %d, want 0", len(following.edges))
	}
	if users.users[1].NumFollowing != 0 || users.users[1].NumFollowers != 0 {
		t.Errorf("self-follow moved counters: %+v", users.users[1])
	}
}

func TestFollowMissingUser(t *testing.T) {
	svc, _, _, _, _, _ := newTestService()

	if err := svc.Follow(context.Background(), 1, 999); err != ErrUserNotFound {
		t.Errorf("Follow missing user: err = %v, want ErrUserNotFound", err)
	}
}

func TestUnfollowIsIdempotent(t *testing.T) {
	svc, _, users, _, _, _ := newTestService()
	ctx := context.Background()

	svc.Follow(ctx, 1, 2)
	if err := svc.Unfollow(ctx, 1, 2); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
	if users.users[1].NumFollowing != 0 || users.users[2].NumFollowers != 0 {
		t.Errorf("counters after unfollow: following=%d followers=%d, want 0/0",
			users.users[1].NumFollowing, users.users[2].NumFollowers)
	}
	// A second unfollow changes nothing.
	if err := svc.Unfollow(ctx, 1, 2); err != nil {
		t.Fatalf("Unfollow twice: %v", err)
	}
	if users.users[2].NumFollowers != 0 {
		t.Errorf("num_followers after double unfollow = %d, want 0", users.users[2].NumFollowers)
	}
}

func TestIsFollowingAnonymous(t *testing.T) {
	svc, _, _, _, _, _ := newTestService()

	following, err := svc.IsFollowing(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("IsFollowing: %v", err)
	}
	if following {
		t.Error("anonymous user reported as following")
	}
}

func TestDeleteUserWalksBackEveryCounter(t *testing.T) {
	svc, _, users, subs, purger, _ := newTestService()
	ctx := context.Background()

	// User 1 follows 2 and 3, user 3 follows 1, and user 1 subscribes to
	// two playlists.
	svc.Follow(ctx, 1, 2)
	svc.Follow(ctx, 1, 3)
	svc.Follow(ctx, 3, 1)
	subs.byUser[1] = []int64{10, 11}
	subs.subCounters[10] = 5
	subs.subCounters[11] = 1

	if err := svc.DeleteUser(ctx, 1); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if users.users[2].NumFollowers != 0 {
		t.Errorf("user 2 num_followers = %d, want 0", users.users[2].NumFollowers)
	}
	if users.users[3].NumFollowers != 0 {
		t.Errorf("user 3 num_followers = %d, want 0", users.users[3].NumFollowers)
	}
	if users.users[3].NumFollowing != 0 {
		t.Errorf("user 3 num_following = %d, want 0", users.users[3].NumFollowing)
	}
	if subs.subCounters[10] != 4 || subs.subCounters[11] != 0 {
		t.Errorf("subscriber counters = %d/%d, want 4/0", subs.subCounters[10], subs.subCounters[11])
	}
	if users.users[1] != nil {
		t.Error("user 1 still present after deletion")
	}
	if len(purger.purged) != 1 || purger.purged[0] != 1 {
		t.Errorf("purged actors = %v, want [1]", purger.purged)
	}

	if err := svc.DeleteUser(ctx, 1); err != ErrUserNotFound {
		t.Errorf("deleting a missing user: err = %v, want ErrUserNotFound", err)
	}
}
