package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	MatchmakingInterval time.Duration
	ToleranceBase       int
	ToleranceStep       int
	ToleranceCap        int
	QueueStaleAfter     time.Duration

	// Match
	MatchDuration    time.Duration
	ProblemsPerMatch int
	FogOfProgress    bool

	// Judging
	JudgeWorkers    int
	JudgeRetries    int
	ExecutorURL     string
	ExecutorTimeout time.Duration
	SuspicionFloor  time.Duration

	// Rating
	KFactor int
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:       parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		MatchmakingInterval: parseDuration(getEnv("MATCHMAKING_INTERVAL", "2s"), 2*time.Second),
		ToleranceBase:       getEnvInt("MATCHMAKING_TOLERANCE_BASE", 100),
		ToleranceStep:       getEnvInt("MATCHMAKING_TOLERANCE_STEP", 20),
		ToleranceCap:        getEnvInt("MATCHMAKING_TOLERANCE_CAP", 500),
		QueueStaleAfter:     parseDuration(getEnv("QUEUE_STALE_AFTER", "30m"), 30*time.Minute),
		MatchDuration:       parseDuration(getEnv("MATCH_DURATION", "30m"), 30*time.Minute),
		ProblemsPerMatch:    getEnvInt("PROBLEMS_PER_MATCH", 3),
		FogOfProgress:       getEnvBool("FOG_OF_PROGRESS", false),
		JudgeWorkers:        getEnvInt("JUDGE_WORKERS", 8),
		JudgeRetries:        getEnvInt("JUDGE_RETRIES", 3),
		ExecutorURL:         getEnv("EXECUTOR_URL", "http://localhost:8081"),
		ExecutorTimeout:     parseDuration(getEnv("EXECUTOR_TIMEOUT", "60s"), 60*time.Second),
		SuspicionFloor:      parseDuration(getEnv("SUSPICION_FLOOR", "10s"), 10*time.Second),
		KFactor:             getEnvInt("RATING_K_FACTOR", 32),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
