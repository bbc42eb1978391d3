package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"collabdocs/pkg/logger"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	LogLevel      string
	AllowedOrigin string

	SeedDocuments bool
	FacepileSize  int

	SimulatePresence   bool
	SimulateJoinDelay  time.Duration
	SimulateLeaveDelay time.Duration
	SimulatedPeers     int
}

// LoadEnvFile loads a .env file if one exists. Variables already set in the
// environment win.
func LoadEnvFile(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
}

// Load returns configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "*"),
		SeedDocuments:      getBool("SEED_DOCUMENTS", true),
		FacepileSize:       getInt("FACEPILE_SIZE", 5),
		SimulatePresence:   getBool("SIMULATE_PRESENCE", false),
		SimulateJoinDelay:  getDuration("SIMULATE_JOIN_DELAY", 2*time.Second),
		SimulateLeaveDelay: getDuration("SIMULATE_LEAVE_DELAY", 10*time.Second),
		SimulatedPeers:     getInt("SIMULATED_PEERS", 2),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		logger.Sugar.Warnf("Invalid %s, using %v", key, fallback)
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		logger.Sugar.Warnf("Invalid %s, using %d", key, fallback)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		logger.Sugar.Warnf("Invalid %s, using %s", key, fallback)
		return fallback
	}
	return v
}
