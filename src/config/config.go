package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/gemini"
	APIKeyPathEnvVar  = "GEMINI_API_KEY_FILE"
	APIKeyEnvVar      = "GEMINI_API_KEY"
	ConfigPathEnvVar  = "GPIX_CONFIG"

	DefaultModel          = "gemini-2.5-flash-lite"
	DefaultHotkey         = "Ctrl+Shift+S"
	DefaultCaptureTimeout = 5
	DefaultAPIDeadline    = 20
	DefaultDimAmount      = 0.5
)

type LoadOptions struct {
	APIKeyPathOverride string
}

type Config struct {
	APIKey            string
	APIKeyPath        string
	Model             string
	EnableFileLogging bool
	Hotkey            string
	CaptureTimeoutSec int
	APIDeadlineSec    int
	DimAmount         float64
	// ScaleFactor overrides the OS-reported display scale when > 0.
	ScaleFactor float64
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use GPIX_CONFIG env var as a path to a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		Model:             getEnvWithDefault("MODEL", DefaultModel),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		CaptureTimeoutSec: positiveInt("CAPTURE_TIMEOUT_SEC", DefaultCaptureTimeout),
		APIDeadlineSec:    positiveInt("API_DEADLINE_SEC", DefaultAPIDeadline),
		DimAmount:         resolveDimAmount(os.Getenv("DIM_AMOUNT")),
		ScaleFactor:       resolveScaleFactor(os.Getenv("SCALE_FACTOR")),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

// resolveAPIKey prefers the key file over the environment variable.
func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return strings.TrimSpace(os.Getenv(APIKeyEnvVar))
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func positiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func resolveDimAmount(value string) float64 {
	if value == "" {
		return DefaultDimAmount
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return DefaultDimAmount
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func resolveScaleFactor(value string) float64 {
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return f
}
