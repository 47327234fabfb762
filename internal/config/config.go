package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string
	CORSOrigins string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BroadcastDriver string // "redis" or "memory"

	// Permission propagation
	SubscribeTimeout      time.Duration // Max wait for the first broadcast snapshot
	ReconcileSchedule     string        // Cron spec for the periodic resync, empty disables it
	BroadcastFailureFatal bool          // Report broadcast failures as failed role updates
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(getEnv("PERMISSION_SUBSCRIBE_TIMEOUT", "10s"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "knock-off-dues"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "kod-admin"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000, http://localhost:3001"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		BroadcastDriver: getEnv("BROADCAST_DRIVER", "redis"),

		SubscribeTimeout:      timeout,
		ReconcileSchedule:     getEnv("PERMISSION_RECONCILE_SCHEDULE", "@every 15m"),
		BroadcastFailureFatal: getEnv("BROADCAST_FAILURE_FATAL", "false") == "true",
	}, nil
}

// IsProduction reports whether the service runs against the production broadcast tree.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
