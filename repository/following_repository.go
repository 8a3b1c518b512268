package repository

import (
	"database/sql"
	"fmt"

	"noddymix/model"
)

// FollowingRepository defines the interface for follow graph data
// operations. Edge creation and removal always run inside a caller-owned
// transaction so the counter bookkeeping on both users lands atomically
// with the edge change.
type FollowingRepository interface {
	BeginTx() (*sql.Tx, error)
	RollbackTx(tx *sql.Tx)
	CommitTx(tx *sql.Tx) error

	GetFollowing(followerID, followedID int64) (*model.Following, error)
	CreateFollowingWithTx(tx *sql.Tx, followerID, followedID int64) (int64, error)
	DeleteFollowingWithTx(tx *sql.Tx, followerID, followedID int64) (bool, error)
	FollowerIDsWithTx(tx *sql.Tx, userID int64) ([]int64, error)
	FollowedIDsWithTx(tx *sql.Tx, userID int64) ([]int64, error)
	FollowedIDs(userID int64) ([]int64, error)
}

// mysqlFollowingRepository implements FollowingRepository for MySQL.
type mysqlFollowingRepository struct {
	db *sql.DB
}

// NewMySQLFollowingRepository creates a new mysqlFollowingRepository.
func NewMySQLFollowingRepository(db *sql.DB) FollowingRepository {
	return &mysqlFollowingRepository{db: db}
}

// BeginTx starts a new transaction.
func (r *mysqlFollowingRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

// RollbackTx rolls back a transaction.
func (r *mysqlFollowingRepository) RollbackTx(tx *sql.Tx) {
	if tx != nil {
		tx.Rollback()
	}
}

// CommitTx commits a transaction.
func (r *mysqlFollowingRepository) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// GetFollowing retrieves the follow edge between two users if present.
func (r *mysqlFollowingRepository) GetFollowing(followerID, followedID int64) (*model.Following, error) {
	f := &model.Following{}
	err := r.db.QueryRow(`SELECT id, follower_id, followed_id, created_at FROM following
	                       WHERE follower_id = ? AND followed_id = ?`, followerID, followedID).
		Scan(&f.ID, &f.FollowerID, &f.FollowedID, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not following
		}
		return nil, fmt.Errorf("failed to scan follow edge (%d, %d): %w", followerID, followedID, err)
	}
	return f, nil
}

// CreateFollowingWithTx inserts a follow edge. The caller has already
// checked the edge is absent and the pair isn't reflexive.
func (r *mysqlFollowingRepository) CreateFollowingWithTx(tx *sql.Tx, followerID, followedID int64) (int64, error) {
	res, err := tx.Exec(`INSERT INTO following (follower_id, followed_id) VALUES (?, ?)`, followerID, followedID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert follow edge (%d, %d): %w", followerID, followedID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for follow edge: %w", err)
	}
	return id, nil
}

// DeleteFollowingWithTx removes a follow edge if present. Returns true
// when a row was actually removed.
func (r *mysqlFollowingRepository) DeleteFollowingWithTx(tx *sql.Tx, followerID, followedID int64) (bool, error) {
	res, err := tx.Exec(`DELETE FROM following WHERE follower_id = ? AND followed_id = ?`, followerID, followedID)
	if err != nil {
		return false, fmt.Errorf("failed to delete follow edge (%d, %d): %w", followerID, followedID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected deleting follow edge: %w", err)
	}
	return n > 0, nil
}

// FollowerIDsWithTx lists the users following the given user.
func (r *mysqlFollowingRepository) FollowerIDsWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	rows, err := tx.Query(`SELECT follower_id FROM following WHERE followed_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query followers of user ID %d: %w", userID, err)
	}
	return collectIDs(rows, "FollowerIDsWithTx")
}

// FollowedIDsWithTx lists the users the given user follows.
func (r *mysqlFollowingRepository) FollowedIDsWithTx(tx *sql.Tx, userID int64) ([]int64, error) {
	rows, err := tx.Query(`SELECT followed_id FROM following WHERE follower_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query followed users of user ID %d: %w", userID, err)
	}
	return collectIDs(rows, "FollowedIDsWithTx")
}

// FollowedIDs is the plain-read variant of FollowedIDsWithTx, for the
// activity feed.
func (r *mysqlFollowingRepository) FollowedIDs(userID int64) ([]int64, error) {
	rows, err := r.db.Query(`SELECT followed_id FROM following WHERE follower_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query followed users of user ID %d: %w", userID, err)
	}
	return collectIDs(rows, "FollowedIDs")
}

func collectIDs(rows *sql.Rows, caller string) ([]int64, error) {
	defer rows.Close()
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID in %s: %w", caller, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in %s: %w", caller, err)
	}
	return ids, nil
}
