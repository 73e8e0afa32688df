package cfg

import (
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		Port:             8000,
		ModelPath:        "cipher_model.json",
		Labels:           []string{"AES", "DES", "RSA"},
		InferenceTimeout: 5 * time.Second,
		MaxInputBytes:    2 * 1024 * 1024,
		IncludeTopK:      true,
		TopK:             3,
		CacheSize:        1024,
		Environment:      "production",
		LogLevel:         "info",
		LogFormat:        "json",
		ShutdownTimeout:  10 * time.Second,
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_EmptyModelPath(t *testing.T) {
	settings := createValidSettings()
	settings.ModelPath = "  "

	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for empty model path")
	}
}

func TestValidateSettings_InvalidPort(t *testing.T) {
	testCases := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"zero", 0, true},
		{"minimum valid", 1, false},
		{"default", 8000, false},
		{"maximum valid", 65535, false},
		{"too high", 65536, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.Port = tc.port

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid port")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid port, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_Labels(t *testing.T) {
	testCases := []struct {
		name    string
		labels  []string
		wantErr bool
	}{
		{"unset uses default vocabulary", nil, false},
		{"single label", []string{"AES"}, false},
		{"blank entry", []string{"AES", " "}, true},
		{"duplicate", []string{"RSA", "AES", "RSA"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.Labels = tc.labels

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid labels")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid labels, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidInferenceTimeout(t *testing.T) {
	testCases := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"too short", 50 * time.Millisecond, true},
		{"minimum valid", 100 * time.Millisecond, false},
		{"normal", 5 * time.Second, false},
		{"maximum valid", 2 * time.Minute, false},
		{"too long", 3 * time.Minute, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.InferenceTimeout = tc.timeout

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid inference timeout")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid inference timeout, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidShutdownTimeout(t *testing.T) {
	testCases := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"too short", 500 * time.Millisecond, true},
		{"minimum valid", time.Second, false},
		{"maximum valid", 5 * time.Minute, false},
		{"too long", 6 * time.Minute, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.ShutdownTimeout = tc.timeout

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid shutdown timeout")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid shutdown timeout, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidMaxInputBytes(t *testing.T) {
	testCases := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -1, true},
		{"one byte", 1, false},
		{"default", 2 * 1024 * 1024, false},
		{"too large", 65 * 1024 * 1024, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.MaxInputBytes = tc.size

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid max input bytes")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid max input bytes, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidTopK(t *testing.T) {
	testCases := []struct {
		name    string
		topK    int
		wantErr bool
	}{
		{"zero", 0, true},
		{"minimum valid", 1, false},
		{"maximum valid", 100, false},
		{"too high", 101, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.TopK = tc.topK

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid top k")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error for valid top k, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidCacheSize(t *testing.T) {
	settings := createValidSettings()

	settings.CacheSize = 0
	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected disabled cache to pass, got: %v", err)
	}

	settings.CacheSize = -5
	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for negative cache size")
	}
}

func TestValidateSettings_LogFormat(t *testing.T) {
	for _, format := range []string{"json", "console", "CONSOLE"} {
		settings := createValidSettings()
		settings.LogFormat = format
		if err := validateSettings(settings); err != nil {
			t.Errorf("Expected log format %q to pass, got: %v", format, err)
		}
	}

	settings := createValidSettings()
	settings.LogFormat = "text"
	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for unknown log format")
	}
}

func TestValidateSettings_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		settings := createValidSettings()
		settings.LogLevel = level
		if err := validateSettings(settings); err != nil {
			t.Errorf("Expected log level %q to pass, got: %v", level, err)
		}
	}

	for _, level := range []string{"", "verbose"} {
		settings := createValidSettings()
		settings.LogLevel = level
		if err := validateSettings(settings); err == nil {
			t.Errorf("Expected error for log level %q", level)
		}
	}
}
