package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"cipher-scan/internal/common"
)

type Settings struct {
	Host             string
	Port             int
	ModelPath        string
	Labels           []string
	PythonPath       string
	InferenceTimeout time.Duration
	MaxInputBytes    int
	IncludeTopK      bool
	TopK             int
	CacheSize        int
	CORSOrigins      []string
	Environment      string
	DataPath         string
	LogLevel         string
	LogFormat        string
	LogFile          string
	ShutdownTimeout  time.Duration
}

type ConfigFile struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		CORSOrigins     []string `yaml:"corsOrigins"`
		Environment     string   `yaml:"environment"`
		ShutdownTimeout string   `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Model struct {
		Path             string   `yaml:"path"`
		Labels           []string `yaml:"labels"`
		PythonPath       string   `yaml:"pythonPath"`
		InferenceTimeout string   `yaml:"inferenceTimeout"`
	} `yaml:"model"`

	Predict struct {
		MaxInputBytes int   `yaml:"maxInputBytes"`
		IncludeTopK   *bool `yaml:"includeTopK"`
		TopK          int   `yaml:"topK"`
		CacheSize     *int  `yaml:"cacheSize"`
	} `yaml:"predict"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
		LogFile   string `yaml:"logFile"`
	} `yaml:"system"`
}

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"https://cryptoscan.vercel.app",
}

func Load() (Settings, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(getEnvOrDefault(common.EnvEnvFile, common.DefaultEnvFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load env file: %w", err)
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	timeout, err := time.ParseDuration(config.Model.InferenceTimeout)
	if err != nil {
		timeout = 5 * time.Second
	}

	shutdown, err := time.ParseDuration(config.Server.ShutdownTimeout)
	if err != nil {
		shutdown = 10 * time.Second
	}

	includeTopK := true
	if config.Predict.IncludeTopK != nil {
		includeTopK = *config.Predict.IncludeTopK
	}
	cacheSize := common.DefaultCacheSize
	if config.Predict.CacheSize != nil {
		cacheSize = *config.Predict.CacheSize
	}

	// Override with environment variables if they exist
	settings := Settings{
		Host:             getEnvOrDefault(common.EnvHost, config.Server.Host),
		Port:             getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		Labels:           getListFromEnvOrConfig(common.EnvLabels, config.Model.Labels),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, timeout),
		MaxInputBytes:    getIntFromEnvOrConfig(common.EnvMaxInputBytes, config.Predict.MaxInputBytes, common.DefaultMaxInputBytes),
		IncludeTopK:      getBoolOrDefault(common.EnvIncludeTopK, includeTopK),
		TopK:             getIntFromEnvOrConfig(common.EnvTopK, config.Predict.TopK, common.DefaultTopK),
		CacheSize:        getIntOrDefault(common.EnvCacheSize, cacheSize),
		CORSOrigins:      getListFromEnvOrConfig(common.EnvCORSOrigins, listOrDefault(config.Server.CORSOrigins, defaultCORSOrigins)),
		Environment:      getEnvOrDefault(common.EnvEnvironment, orDefault(config.Server.Environment, common.DefaultEnvironment)),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orDefault(config.System.LogFormat, common.DefaultLogFormat)),
		LogFile:          getEnvOrDefault(common.EnvLogFile, config.System.LogFile),
		ShutdownTimeout:  getDurationOrDefault(common.EnvShutdownTimeout, shutdown),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Host:             os.Getenv(common.EnvHost), // empty binds all interfaces
		Port:             getIntOrDefault(common.EnvPort, common.DefaultPort),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		Labels:           splitOrDefault(os.Getenv(common.EnvLabels), nil),
		PythonPath:       os.Getenv(common.EnvPythonPath),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, 5*time.Second),
		MaxInputBytes:    getIntOrDefault(common.EnvMaxInputBytes, common.DefaultMaxInputBytes),
		IncludeTopK:      getBoolOrDefault(common.EnvIncludeTopK, true),
		TopK:             getIntOrDefault(common.EnvTopK, common.DefaultTopK),
		CacheSize:        getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		CORSOrigins:      splitOrDefault(os.Getenv(common.EnvCORSOrigins), defaultCORSOrigins),
		Environment:      getEnvOrDefault(common.EnvEnvironment, common.DefaultEnvironment),
		DataPath:         os.Getenv(common.EnvDataPath), // optional
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		LogFile:          os.Getenv(common.EnvLogFile),
		ShutdownTimeout:  getDurationOrDefault(common.EnvShutdownTimeout, 10*time.Second),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func listOrDefault(v, defaultValue []string) []string {
	if len(v) > 0 {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getListFromEnvOrConfig(key string, configValues []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValues
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", settings.Port)
	}

	if strings.TrimSpace(settings.ModelPath) == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	// Validate labels
	seen := make(map[string]bool, len(settings.Labels))
	for _, label := range settings.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("labels cannot contain empty entries")
		}
		if seen[label] {
			return fmt.Errorf("duplicate label %q", label)
		}
		seen[label] = true
	}

	// Validate time durations
	if settings.InferenceTimeout < 100*time.Millisecond || settings.InferenceTimeout > 2*time.Minute {
		return fmt.Errorf("inference timeout must be between 100ms and 2m, got %v", settings.InferenceTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}

	// Validate integer values
	if settings.MaxInputBytes <= 0 || settings.MaxInputBytes > common.MaxInputBytesLimit {
		return fmt.Errorf("max input bytes must be between 1 and 64MiB, got %d", settings.MaxInputBytes)
	}
	if settings.TopK < 1 || settings.TopK > common.MaxTopK {
		return fmt.Errorf("top k must be between 1 and 100, got %d", settings.TopK)
	}
	if settings.CacheSize < 0 || settings.CacheSize > common.MaxCacheSize {
		return fmt.Errorf("cache size must be between 0 and 1000000, got %d", settings.CacheSize)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil || settings.LogLevel == "" {
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}
	switch strings.ToLower(settings.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
