package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"noddymix/model"
)

// UserRepository defines the interface for user data operations.
//
// The counter adjustment methods exist for the relationship and playlist
// services: every one of them must run inside the same transaction as the
// relationship row change it accounts for.
type UserRepository interface {
	CreateUser(user *model.User) (int64, error)
	GetUserByID(id int64) (*model.User, error)
	GetUserByUsername(username string) (*model.User, error)
	UpdateUserProfile(user *model.User) error
	FilterActivityPublic(userIDs []int64) ([]int64, error)
	AdjustNumPlaylistsWithTx(tx *sql.Tx, userID int64, delta int) error
	AdjustNumFollowersWithTx(tx *sql.Tx, userID int64, delta int) error
	AdjustNumFollowingWithTx(tx *sql.Tx, userID int64, delta int) error
	DeleteUserWithTx(tx *sql.Tx, userID int64) error
	BeginTx() (*sql.Tx, error)
	RollbackTx(tx *sql.Tx)
	CommitTx(tx *sql.Tx) error
}

// mysqlUserRepository implements UserRepository for MySQL.
type mysqlUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new mysqlUserRepository.
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{db: db}
}

const userColumns = `id, username, email, avatar_path, cover_path, activity_public,
	num_playlists, num_followers, num_following, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	user := &model.User{}
	var avatar, cover sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.Email, &avatar, &cover,
		&user.ActivityPublic, &user.NumPlaylists, &user.NumFollowers,
		&user.NumFollowing, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.AvatarPath = avatar.String
	user.CoverPath = cover.String
	return user, nil
}

// CreateUser adds a new user to the database.
func (r *mysqlUserRepository) CreateUser(user *model.User) (int64, error) {
	query := `INSERT INTO users (username, email, avatar_path, cover_path, activity_public)
	           VALUES (?, ?, ?, ?, ?)`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare create user statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(user.Username, user.Email, user.AvatarPath, user.CoverPath, user.ActivityPublic)
	if err != nil {
		return 0, fmt.Errorf("failed to execute create user statement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}
	return id, nil
}

// GetUserByID retrieves a user by their ID.
func (r *mysqlUserRepository) GetUserByID(id int64) (*model.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user row for ID %d: %w", id, err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username.
func (r *mysqlUserRepository) GetUserByUsername(username string) (*model.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user row for username %s: %w", username, err)
	}
	return user, nil
}

// UpdateUserProfile updates the mutable profile fields of a user. Counters
// are deliberately excluded; they only move through the adjust methods.
func (r *mysqlUserRepository) UpdateUserProfile(user *model.User) error {
	query := `UPDATE users SET username = ?, email = ?, avatar_path = ?, cover_path = ?, activity_public = ? WHERE id = ?`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare update user profile statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(user.Username, user.Email, user.AvatarPath, user.CoverPath, user.ActivityPublic, user.ID)
	if err != nil {
		return fmt.Errorf("failed to execute update user profile for user ID %d: %w", user.ID, err)
	}
	return nil
}

// FilterActivityPublic narrows a set of user IDs down to those whose
// activity is visible to others. Used when assembling activity feeds.
func (r *mysqlUserRepository) FilterActivityPublic(userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return []int64{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
	}
	rows, err := r.db.Query(`SELECT id FROM users WHERE activity_public = TRUE AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity-public users: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, len(userIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user ID in FilterActivityPublic: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in FilterActivityPublic: %w", err)
	}
	return ids, nil
}

func (r *mysqlUserRepository) adjustCounterWithTx(tx *sql.Tx, column string, userID int64, delta int) error {
	query := fmt.Sprintf("UPDATE users SET %s = %s + ? WHERE id = ?", column, column)
	if _, err := tx.Exec(query, delta, userID); err != nil {
		return fmt.Errorf("failed to adjust %s for user ID %d: %w", column, userID, err)
	}
	return nil
}

// AdjustNumPlaylistsWithTx moves the owner's playlist counter by delta.
func (r *mysqlUserRepository) AdjustNumPlaylistsWithTx(tx *sql.Tx, userID int64, delta int) error {
	return r.adjustCounterWithTx(tx, "num_playlists", userID, delta)
}

// AdjustNumFollowersWithTx moves a user's follower counter by delta.
func (r *mysqlUserRepository) AdjustNumFollowersWithTx(tx *sql.Tx, userID int64, delta int) error {
	return r.adjustCounterWithTx(tx, "num_followers", userID, delta)
}

// AdjustNumFollowingWithTx moves a user's following counter by delta.
func (r *mysqlUserRepository) AdjustNumFollowingWithTx(tx *sql.Tx, userID int64, delta int) error {
	return r.adjustCounterWithTx(tx, "num_following", userID, delta)
}

// DeleteUserWithTx deletes the user row. Dependent rows (playlists,
// memberships, subscriptions, follow edges) go with it via foreign key
// cascade; the counter bookkeeping for those rows must already have
// happened in the same transaction.
func (r *mysqlUserRepository) DeleteUserWithTx(tx *sql.Tx, userID int64) error {
	if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user ID %d: %w", userID, err)
	}
	return nil
}

// BeginTx starts a new transaction.
func (r *mysqlUserRepository) BeginTx() (*sql.Tx, error) {
	return r.db.Begin()
}

// RollbackTx rolls back a transaction.
func (r *mysqlUserRepository) RollbackTx(tx *sql.Tx) {
	if tx != nil {
		tx.Rollback()
	}
}

// CommitTx commits a transaction.
func (r *mysqlUserRepository) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}
