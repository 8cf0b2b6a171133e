package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	GeminiAPIKey      string
	DatabaseURL       string
	HTTPPort          string
	ChatModel         string
	VisionModel       string
	MemoryMaxMessages int
	FrontendURL       string

	// Client
	BackendURL     string
	StateDBPath    string
	RequestTimeout time.Duration

	LogLevel string
}

var AppConfig Config

// LoadConfig fills AppConfig from the environment. A .env file in the working
// directory is read first when present. It reports whether the .env file was found.
func LoadConfig() bool {
	foundEnvFile := godotenv.Load() == nil

	AppConfig = Config{
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:       getEnv("DATABASE_URL", "vibemate.db"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		ChatModel:         getEnv("CHAT_MODEL", "gemini-1.5-flash-latest"),
		VisionModel:       getEnv("VISION_MODEL", "gemini-1.5-flash-latest"),
		MemoryMaxMessages: getEnvAsInt("MEMORY_MAX_MESSAGES", 20),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),

		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8080"),
		StateDBPath:    getEnv("VIBEMATE_STATE_DB", defaultStatePath()),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if AppConfig.MemoryMaxMessages <= 0 {
		AppConfig.MemoryMaxMessages = 20
	}
	if AppConfig.RequestTimeout <= 0 {
		AppConfig.RequestTimeout = 10 * time.Second
	}
	return foundEnvFile
}

// ValidateServer checks the settings only the backend needs.
func (c Config) ValidateServer() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL cannot be empty")
	}
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}
	return nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vibemate-state.db"
	}
	return filepath.Join(home, ".vibemate", "state.db")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
