package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	// HTTP server
	ListenAddr string

	// Storage
	DatabaseURL   string
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Chain
	ChainRPCURL     string
	ClaimContract   string
	ChainEnabled    bool

	// Pool guard
	PoolSafetyThreshold float64

	// Logging
	LogLevel string
}

// Load reads configuration from the environment. Missing values fall back
// to development defaults; the engine degrades per-subsystem rather than
// refusing to start.
func Load() *Config {
	return &Config{
		ListenAddr:          getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		ChainRPCURL:         os.Getenv("CHAIN_RPC_URL"),
		ClaimContract:       os.Getenv("CLAIM_CONTRACT_ADDRESS"),
		ChainEnabled:        os.Getenv("CHAIN_RPC_URL") != "",
		PoolSafetyThreshold: getEnvAsFloat("POOL_SAFETY_THRESHOLD", DefaultPoolSafetyThreshold),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
