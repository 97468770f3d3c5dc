// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	// RateLimit is the sustained number of API requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisTTL      time.Duration
	MongoURI      string
	MongoDBName   string
	SQLitePath    string
	CartKey       string
	WishlistKey   string

	EligibilityURL         string
	EligibilityTimeout     time.Duration
	EligibilityMaxFailures uint32
	EligibilityOpenTimeout time.Duration
	GiftDebounce           time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	CartOwnerID  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvMs(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load collects configuration from the environment with defaults.
func Load() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50053"),
		RequestTimeout:  getEnvMs("REQUEST_TIMEOUT_MS", 30000),
		ShutdownTimeout: getEnvMs("SHUTDOWN_TIMEOUT_MS", 10000),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RateLimit:       getEnvFloat("RATE_LIMIT", 50),
		RateBurst:       getEnvInt("RATE_BURST", 100),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendRedis)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTTL:      time.Duration(getEnvInt("REDIS_TTL_HOURS", 0)) * time.Hour,
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),
		SQLitePath:    getEnv("SQLITE_PATH", "giftcart.db"),
		CartKey:       getEnv("CART_KEY", "cart"),
		WishlistKey:   getEnv("WISHLIST_KEY", "wishlist"),

		EligibilityURL:         getEnv("ELIGIBILITY_URL", "http://localhost:8090/api/gifts/eligibility"),
		EligibilityTimeout:     getEnvMs("ELIGIBILITY_TIMEOUT_MS", 5000),
		EligibilityMaxFailures: uint32(max(getEnvInt("ELIGIBILITY_MAX_FAILURES", 5), 1)),
		EligibilityOpenTimeout: getEnvMs("ELIGIBILITY_OPEN_TIMEOUT_MS", 30000),
		GiftDebounce:           getEnvMs("GIFT_DEBOUNCE_MS", 500),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout-outbox"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "giftcart-service-consumer"),
		CartOwnerID:  getEnv("CART_OWNER_ID", "1"),
	}
}
