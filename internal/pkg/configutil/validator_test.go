package configutil

import (
	"testing"
	"time"
)

func TestValidator_RequiredString(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     string
		wantError bool
	}{
		{
			name:      "model_set",
			field:     "chat.default_model",
			value:     "qwen3:0.6b",
			wantError: false,
		},
		{
			name:      "model_missing",
			field:     "chat.default_model",
			value:     "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator()
			result := validator.RequiredString(tt.field, tt.value).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for field %s with value %q, but got none", tt.field, tt.value)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for field %s with value %q, but got: %v", tt.field, tt.value, result)
			}
		})
	}
}

func TestValidator_IntRange(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     int
		min       int
		max       int
		wantError bool
	}{
		{
			name:      "valid_port",
			field:     "server.port",
			value:     8080,
			min:       1,
			max:       65535,
			wantError: false,
		},
		{
			name:      "port_zero",
			field:     "server.port",
			value:     0,
			min:       1,
			max:       65535,
			wantError: true,
		},
		{
			name:      "port_too_large",
			field:     "endpoint.port",
			value:     70000,
			min:       1,
			max:       65535,
			wantError: true,
		},
		{
			name:      "batch_threshold",
			field:     "chat.batch_threshold",
			value:     30,
			min:       1,
			max:       1000,
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator()
			result := validator.IntRange(tt.field, tt.value, tt.min, tt.max).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for field %s with value %d, but got none", tt.field, tt.value)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for field %s with value %d, but got: %v", tt.field, tt.value, result)
			}
		})
	}
}

func TestValidator_OneOf(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     string
		allowed   []string
		wantError bool
	}{
		{
			name:      "known_provider",
			field:     "endpoint.provider",
			value:     "ollama",
			allowed:   []string{"ollama", "openai"},
			wantError: false,
		},
		{
			name:      "unknown_provider",
			field:     "endpoint.provider",
			value:     "bedrock",
			allowed:   []string{"ollama", "openai"},
			wantError: true,
		},
		{
			name:      "log_format",
			field:     "logging.format",
			value:     "json",
			allowed:   []string{"text", "json"},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator()
			result := validator.OneOf(tt.field, tt.value, tt.allowed).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for field %s with value %s, but got none", tt.field, tt.value)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for field %s with value %s, but got: %v", tt.field, tt.value, result)
			}
		})
	}
}

func TestValidator_ValidateURL(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		url       string
		wantError bool
	}{
		{
			name:      "local_endpoint",
			field:     "endpoint.base_url",
			url:       "http://localhost:11434",
			wantError: false,
		},
		{
			name:      "https_endpoint",
			field:     "endpoint.base_url",
			url:       "https://api.openai.com/v1",
			wantError: false,
		},
		{
			name:      "bare_hostname",
			field:     "endpoint.base_url",
			url:       "not-a-url",
			wantError: true,
		},
		{
			name:      "empty_url",
			field:     "endpoint.base_url",
			url:       "",
			wantError: false, // optional; emptiness is RequiredString's job
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator()
			result := validator.ValidateURL(tt.field, tt.url).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for field %s with URL %s, but got none", tt.field, tt.url)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for field %s with URL %s, but got: %v", tt.field, tt.url, result)
			}
		})
	}
}

func TestValidator_DurationRange(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     time.Duration
		min       time.Duration
		max       time.Duration
		wantError bool
	}{
		{
			name:      "valid_poll_interval",
			field:     "chat.reachability_poll_seconds",
			value:     10 * time.Second,
			min:       1 * time.Second,
			max:       5 * time.Minute,
			wantError: false,
		},
		{
			name:      "below_min",
			field:     "chat.flush_interval_ms",
			value:     500 * time.Microsecond,
			min:       1 * time.Millisecond,
			max:       5 * time.Second,
			wantError: true,
		},
		{
			name:      "above_max",
			field:     "chat.reachability_poll_seconds",
			value:     10 * time.Minute,
			min:       1 * time.Second,
			max:       5 * time.Minute,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator()
			result := validator.DurationRange(tt.field, tt.value, tt.min, tt.max).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for field %s with duration %v, but got none", tt.field, tt.value)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for field %s with duration %v, but got: %v", tt.field, tt.value, result)
			}
		})
	}
}

func TestValidator_ChainedValidation(t *testing.T) {
	// A well-formed server config passes every rule in the chain.
	validator := NewValidator()
	result := validator.
		RequiredString("database.path", "./data/chatkit.db").
		IntRange("server.port", 8080, 1, 65535).
		OneOf("logging.level", "info", []string{"debug", "info", "warn", "error", "fatal"}).
		ValidateURL("endpoint.base_url", "http://localhost:11434").
		Result()

	if result != nil {
		t.Errorf("Expected no errors from chained validation, but got: %v", result)
	}

	// Every failing rule contributes its own error.
	validator2 := NewValidator()
	result2 := validator2.
		RequiredString("database.path", "").
		IntRange("server.port", 0, 1, 65535).
		OneOf("endpoint.provider", "bedrock", []string{"ollama", "openai"}).
		Result()

	if result2 == nil {
		t.Fatal("Expected errors from chained validation with invalid values, but got none")
	}

	if validationErrors, ok := result2.(ValidationErrors); ok {
		if len(validationErrors) != 3 {
			t.Errorf("Expected 3 validation errors, but got %d", len(validationErrors))
		}
	} else {
		t.Errorf("Expected ValidationErrors type, but got %T", result2)
	}
}

func TestValidator_ErrorCount(t *testing.T) {
	validator := NewValidator()

	validator.RequiredString("database.path", "")
	validator.IntRange("server.port", 0, 1, 65535)
	validator.OneOf("logging.format", "xml", []string{"text", "json"})

	if validator.ErrorCount() != 3 {
		t.Errorf("Expected error count 3, but got %d", validator.ErrorCount())
	}

	if !validator.HasErrors() {
		t.Errorf("Expected HasErrors() to return true, but got false")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	singleError := ValidationErrors{
		ValidationError{Field: "database.path", Message: "is required"},
	}
	expected := "validation error for field 'database.path': is required"
	if singleError.Error() != expected {
		t.Errorf("Expected single error message %q, but got %q", expected, singleError.Error())
	}

	multipleErrors := ValidationErrors{
		ValidationError{Field: "server.port", Message: "is required"},
		ValidationError{Field: "logging.level", Message: "is invalid"},
	}
	expectedMultiple := "multiple validation errors: 2 errors found"
	if multipleErrors.Error() != expectedMultiple {
		t.Errorf("Expected multiple error message %q, but got %q", expectedMultiple, multipleErrors.Error())
	}

	noErrors := ValidationErrors{}
	expectedNone := "no validation errors"
	if noErrors.Error() != expectedNone {
		t.Errorf("Expected no-error message %q, but got %q", expectedNone, noErrors.Error())
	}
}
