package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Directory watched for dropped audio/art files to upload.
	SpoolDir string

	FFprobePath string

	// Activity feed
	ActivityChannel string
	ActivityLimit   int

	// TTL for session-backed (anonymous) state, in hours.
	SessionTTLHours int

	// Ranking
	SongRankGravity   float64
	HeavyRotationDays int

	// Pagination
	SongsPerPage     int
	PlaylistsPerPage int

	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "noddymix"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "noddymix"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		SpoolDir: getEnv("SPOOL_DIR", "spool"),

		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		ActivityChannel: getEnv("ACTIVITY_CHANNEL", "activity"),
		ActivityLimit:   getEnvInt("ACTIVITY_LIMIT", 20),

		SessionTTLHours: getEnvInt("SESSION_TTL_HOURS", 24),

		SongRankGravity:   getEnvFloat("SONG_RANK_GRAVITY", 1.8),
		HeavyRotationDays: getEnvInt("HEAVY_ROTATION_DAYS", 7),

		SongsPerPage:     getEnvInt("SONGS_PER_PAGE", 20),
		PlaylistsPerPage: getEnvInt("PLAYLISTS_PER_PAGE", 36),

		LogLevel: getEnv("LOG_LEVEL", "debug"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
