package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры движка.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// Redis для кэша лидербордов; пустой Addr выключает кэш.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Cloudflare R2 для экспорта сеток.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2PublicBaseURL   string

	// Stripe для выплат; пустой ключ выключает кошелёк.
	StripeAPIKey   string
	EscrowWalletID string

	DefaultCurrency      string
	WalletTransferWait   time.Duration
	LeaderboardActiveTTL time.Duration
	LeaderboardFinalTTL  time.Duration
	SchedulerInterval    time.Duration
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

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	walletWait, err := durationEnv("WALLET_TRANSFER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	activeTTL, err := durationEnv("LEADERBOARD_ACTIVE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}
	finalTTL, err := durationEnv("LEADERBOARD_FINAL_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	schedulerInterval, err := durationEnv("SCHEDULER_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          os.Getenv("R2_BUCKET"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		StripeAPIKey:   os.Getenv("STRIPE_API_KEY"),
		EscrowWalletID: os.Getenv("ESCROW_WALLET_ID"),

		DefaultCurrency:      getEnvOrDefault("DEFAULT_CURRENCY", "USD"),
		WalletTransferWait:   walletWait,
		LeaderboardActiveTTL: activeTTL,
		LeaderboardFinalTTL:  finalTTL,
		SchedulerInterval:    schedulerInterval,
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}
