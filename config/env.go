package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Redis  RedisConfig
	DB     DBConfig
	Server ServerConfig
	Auth   AuthConfig
	Ledger LedgerPolicy
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type ServerConfig struct {
	Port string
}

type AuthConfig struct {
	JWTSecret string
}

// LedgerPolicy holds the tunable business constants of the ledger engine.
// EditWindow bounds how far back a chain entry can still be edited; the
// remaining knobs shape lock waits and optimistic-conflict retries.
type LedgerPolicy struct {
	EditWindow    int
	LockWait      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	UseRedisLock  bool
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	editWindow, _ := strconv.Atoi(getEnv("LEDGER_EDIT_WINDOW", "15"))
	lockWaitMs, _ := strconv.Atoi(getEnv("LOCK_WAIT_MS", "5000"))
	retryAttempts, _ := strconv.Atoi(getEnv("RETRY_ATTEMPTS", "3"))
	retryBackoffMs, _ := strconv.Atoi(getEnv("RETRY_BACKOFF_MS", "50"))
	useRedisLock, _ := strconv.ParseBool(getEnv("USE_REDIS_LOCK", "false"))

	return Config{
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "gastra"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerPolicy{
			EditWindow:    editWindow,
			LockWait:      time.Duration(lockWaitMs) * time.Millisecond,
			RetryAttempts: retryAttempts,
			RetryBackoff:  time.Duration(retryBackoffMs) * time.Millisecond,
			UseRedisLock:  useRedisLock,
		},
	}
}

// DSN builds the postgres connection string, unless LEDGER_DSN overrides it wholesale.
func (c Config) DSN() string {
	if dsn := os.Getenv("LEDGER_DSN"); dsn != "" {
		return dsn
	}
	return "host=" + c.DB.Host + " port=" + c.DB.Port + " user=" + c.DB.User +
		" password=" + c.DB.Password + " dbname=" + c.DB.Name + " sslmode=disable"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
