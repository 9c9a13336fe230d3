package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	RedisAddr    string
	JWTSecretKey string
	ServerPort   int

	GoogleClientID string

	YouTubeAPIKey        string
	YouTubeRegion        string
	YouTubeSearchResults int
	FetchInterval        time.Duration

	ForfeitParticipantsOnly bool

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := getEnvOrDefault("SERVER_PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	intervalStr := getEnvOrDefault("YOUTUBE_FETCH_INTERVAL", "30m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid YOUTUBE_FETCH_INTERVAL environment variable: %w", err)
	}

	searchResultsStr := getEnvOrDefault("YOUTUBE_SEARCH_RESULTS", "50")
	searchResults, err := strconv.Atoi(searchResultsStr)
	if err != nil || searchResults <= 0 {
		return nil, fmt.Errorf("invalid YOUTUBE_SEARCH_RESULTS environment variable: %q", searchResultsStr)
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		RedisAddr:    getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),

		YouTubeAPIKey:        os.Getenv("YOUTUBE_API_KEY"),
		YouTubeRegion:        getEnvOrDefault("YOUTUBE_REGION", "KR"),
		YouTubeSearchResults: searchResults,
		FetchInterval:        interval,

		ForfeitParticipantsOnly: os.Getenv("FORFEIT_PARTICIPANTS_ONLY") == "true",

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
