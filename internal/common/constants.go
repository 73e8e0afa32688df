package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvEnvFile          = "ENV_FILE"
	EnvHost             = "HOST"
	EnvPort             = "PORT"
	EnvModelPath        = "MODEL_PATH"
	EnvLabels           = "LABELS"
	EnvPythonPath       = "PYTHON_PATH"
	EnvInferenceTimeout = "INFERENCE_TIMEOUT"
	EnvMaxInputBytes    = "MAX_INPUT_BYTES"
	EnvIncludeTopK      = "INCLUDE_TOP_K"
	EnvTopK             = "TOP_K"
	EnvCacheSize        = "CACHE_SIZE"
	EnvCORSOrigins      = "CORS_ORIGINS"
	EnvEnvironment      = "ENVIRONMENT"
	EnvDataPath         = "DATA_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvLogFile          = "LOG_FILE"
	EnvShutdownTimeout  = "SHUTDOWN_TIMEOUT"
	EnvAPIURL           = "CIPHER_SCAN_URL"
)

// Configuration defaults
const (
	DefaultEnvFile       = ".env"
	DefaultPort          = 8000
	DefaultModelPath     = "cipher_model.json"
	DefaultMaxInputBytes = 2 * 1024 * 1024 // 2 MiB
	DefaultTopK          = 3
	DefaultCacheSize     = 1024
	DefaultEnvironment   = "production"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultAPIURL        = "http://127.0.0.1:8000"
)

// Environments
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Log file rotation defaults
const (
	LogMaxSizeMB  = 100
	LogMaxBackups = 5
	LogMaxAgeDays = 28
)

// Validation constants
const (
	MaxInputBytesLimit = 64 * 1024 * 1024
	MaxTopK            = 100
	MaxCacheSize       = 1_000_000
)
