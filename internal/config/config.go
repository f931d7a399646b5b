// Package config loads runtime settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	// Session
	IdleTimeout  time.Duration
	IdentityFile string
	DetachByte   byte

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	detach := getEnvAsInt("SKIFF_DETACH_BYTE", 0x13)
	if detach < 0 || detach > 255 {
		return nil, fmt.Errorf("config: SKIFF_DETACH_BYTE must be a byte value (0-255), got %d", detach)
	}

	cfg := &Config{
		IdleTimeout:  time.Duration(getEnvAsInt("SKIFF_IDLE_TIMEOUT", 300)) * time.Second,
		IdentityFile: getEnv("SKIFF_IDENTITY", ""),
		DetachByte:   byte(detach),
		LogLevel:     getEnv("SKIFF_LOG_LEVEL", "info"),
		LogFormat:    getEnv("SKIFF_LOG_FORMAT", "json"),
		LogFile:      getEnv("SKIFF_LOG_FILE", ""),
	}
	return cfg, nil
}

// Logger builds the process logger. The terminal belongs to the UI, so logs
// go to LogFile when set and are discarded otherwise.
func (c *Config) Logger() (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = io.Discard
	cleanup := func() {}
	if c.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o700); err != nil {
			return zerolog.Logger{}, nil, err
		}
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		out = f
		cleanup = func() { _ = f.Close() }
	}
	if c.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, cleanup, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
