package db

import (
	"database/sql"
	"fmt"
	"log"

	"noddymix/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't
// exist. Foreign keys cascade on delete so that removing a user or song
// also removes the dependent rows; the counter adjustments for those
// cascades are done explicitly by the services before the delete.
func InitDB() error {
	stmts := []struct {
		name  string
		query string
	}{
		{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			avatar_path VARCHAR(767),
			cover_path VARCHAR(767),
			activity_public BOOLEAN NOT NULL DEFAULT TRUE,
			num_playlists INT NOT NULL DEFAULT 0,
			num_followers INT NOT NULL DEFAULT 0,
			num_following INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`},
		{"artists", `
		CREATE TABLE IF NOT EXISTS artists (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(200) NOT NULL
		);`},
		{"albums", `
		CREATE TABLE IF NOT EXISTS albums (
			id INT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			art_path VARCHAR(767),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`},
		{"songs", `
		CREATE TABLE IF NOT EXISTS songs (
			id INT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			artist_id INT NOT NULL,
			album_id INT NOT NULL,
			audio_path VARCHAR(767),
			num_plays BIGINT NOT NULL DEFAULT 0,
			length INT NOT NULL DEFAULT 0,
			date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_songs_artist FOREIGN KEY (artist_id) REFERENCES artists(id) ON DELETE CASCADE,
			CONSTRAINT fk_songs_album FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE
		);`},
		{"song_featuring", `
		CREATE TABLE IF NOT EXISTS song_featuring (
			id INT AUTO_INCREMENT PRIMARY KEY,
			song_id INT NOT NULL,
			artist_id INT NOT NULL,
			CONSTRAINT fk_featuring_song FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
			CONSTRAINT fk_featuring_artist FOREIGN KEY (artist_id) REFERENCES artists(id) ON DELETE CASCADE,
			CONSTRAINT uq_song_featuring UNIQUE (song_id, artist_id)
		);`},
		{"playlists", `
		CREATE TABLE IF NOT EXISTS playlists (
			id INT AUTO_INCREMENT PRIMARY KEY,
			owner_id INT NOT NULL,
			title VARCHAR(50) NOT NULL DEFAULT 'a playlist',
			is_public BOOLEAN NOT NULL DEFAULT TRUE,
			cover_album_id INT,
			num_songs INT NOT NULL DEFAULT 0,
			num_subscribers INT NOT NULL DEFAULT 0,
			date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_playlists_owner FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE,
			CONSTRAINT fk_playlists_cover FOREIGN KEY (cover_album_id) REFERENCES albums(id) ON DELETE SET NULL
		);`},
		{"playlist_songs", `
		CREATE TABLE IF NOT EXISTS playlist_songs (
			id INT AUTO_INCREMENT PRIMARY KEY,
			playlist_id INT NOT NULL,
			song_id INT NOT NULL,
			` + "`order`" + ` INT NOT NULL,
			date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_ps_playlist FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
			CONSTRAINT fk_ps_song FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
			CONSTRAINT uq_playlist_song UNIQUE (playlist_id, song_id)
		);`},
		{"playlist_subscribers", `
		CREATE TABLE IF NOT EXISTS playlist_subscribers (
			id INT AUTO_INCREMENT PRIMARY KEY,
			playlist_id INT NOT NULL,
			user_id INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_sub_playlist FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
			CONSTRAINT fk_sub_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			CONSTRAINT uq_playlist_subscriber UNIQUE (playlist_id, user_id)
		);`},
		{"following", `
		CREATE TABLE IF NOT EXISTS following (
			id INT AUTO_INCREMENT PRIMARY KEY,
			follower_id INT NOT NULL,
			followed_id INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_following_follower FOREIGN KEY (follower_id) REFERENCES users(id) ON DELETE CASCADE,
			CONSTRAINT fk_following_followed FOREIGN KEY (followed_id) REFERENCES users(id) ON DELETE CASCADE,
			CONSTRAINT uq_following_pair UNIQUE (follower_id, followed_id)
		);`},
		{"song_plays", `
		CREATE TABLE IF NOT EXISTS song_plays (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			song_id INT NOT NULL,
			date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_plays_song FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
			INDEX idx_plays_song_date (song_id, date_added)
		);`},
		{"song_ranks", `
		CREATE TABLE IF NOT EXISTS song_ranks (
			song_id INT PRIMARY KEY,
			score DOUBLE NOT NULL DEFAULT 0,
			CONSTRAINT fk_ranks_song FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
		);`},
	}

	for _, s := range stmts {
		if _, err := DB.Exec(s.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.name, err)
		}
	}

	log.Println("Database schema initialized (or already present).")
	return nil
}
