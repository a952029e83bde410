package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/username/chatkit/internal/pkg/constants"
)

func TestWithTimeout(t *testing.T) {
	duration := 5 * time.Second
	ctx, cancel := WithTimeout(duration)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok, "Context should have a deadline")
	assert.True(t, time.Until(deadline) <= duration, "Deadline should be within the specified duration")
}

func TestTimeoutHelpers(t *testing.T) {
	tests := []struct {
		name     string
		makeCtx  func() (context.Context, context.CancelFunc)
		expected time.Duration
	}{
		{"default", WithDefaultTimeout, DefaultTimeouts.Default},
		{"short", WithShortTimeout, DefaultTimeouts.Short},
		{"long", WithLongTimeout, DefaultTimeouts.Long},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.makeCtx()
			defer cancel()

			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "Context should have a deadline")
			assert.True(t, time.Until(deadline) <= tt.expected, "Deadline should be within the helper's timeout")
		})
	}
}

func TestWithCustomTimeout(t *testing.T) {
	config := TimeoutConfig{
		Default: 15 * time.Second,
		Short:   3 * time.Second,
		Long:    45 * time.Second,
	}

	tests := []struct {
		name          string
		operationType string
		expectedMax   time.Duration
	}{
		{"storage_operation", constants.OperationTypeStorage, config.Default},
		{"messaging_operation", constants.OperationTypeMessaging, config.Short},
		{"inference_operation", constants.OperationTypeInference, config.Long},
		{"unknown_operation", "unknown", config.Default},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := WithCustomTimeout(tt.operationType, config)
			defer cancel()

			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "Context should have a deadline")
			assert.True(t, time.Until(deadline) <= tt.expectedMax, "Deadline should be within expected timeout")
		})
	}
}

func TestDefaultPagination_FollowsConstants(t *testing.T) {
	assert.Equal(t, constants.DefaultPageLimit, DefaultPagination.DefaultLimit)
	assert.Equal(t, constants.MaxPageLimit, DefaultPagination.MaxLimit)
}

func TestParsePaginationParams(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    map[string]string
		expectedLimit  int
		expectedOffset int
	}{
		{
			name:           "defaults_when_absent",
			queryParams:    map[string]string{},
			expectedLimit:  DefaultPagination.DefaultLimit,
			expectedOffset: 0,
		},
		{
			name: "explicit_page",
			queryParams: map[string]string{
				"limit":  "30",
				"offset": "60",
			},
			expectedLimit:  30,
			expectedOffset: 60,
		},
		{
			name: "garbage_limit_falls_back",
			queryParams: map[string]string{
				"limit":  "all",
				"offset": "5",
			},
			expectedLimit:  DefaultPagination.DefaultLimit,
			expectedOffset: 5,
		},
		{
			name: "negative_values_clamped",
			queryParams: map[string]string{
				"limit":  "-10",
				"offset": "-5",
			},
			expectedLimit:  DefaultPagination.DefaultLimit,
			expectedOffset: 0,
		},
		{
			name: "oversized_limit_capped",
			queryParams: map[string]string{
				"limit": "5000",
			},
			expectedLimit:  DefaultPagination.MaxLimit,
			expectedOffset: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			req := httptest.NewRequest("GET", "/api/conversations", nil)
			q := req.URL.Query()
			for key, value := range tt.queryParams {
				q.Add(key, value)
			}
			req.URL.RawQuery = q.Encode()
			c.Request = req

			result := ParsePaginationParams(c)

			assert.Equal(t, tt.expectedLimit, result.Limit, "Limit should match expected value")
			assert.Equal(t, tt.expectedOffset, result.Offset, "Offset should match expected value")
		})
	}
}

func TestParsePaginationParamsWithConfig(t *testing.T) {
	customConfig := PaginationConfig{
		DefaultLimit: 10,
		MaxLimit:     50,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/conversations", nil)

	result := ParsePaginationParamsWithConfig(c, customConfig)

	assert.Equal(t, customConfig.DefaultLimit, result.Limit, "Should use custom default limit")
	assert.Equal(t, 0, result.Offset, "Should use default offset")
}

func TestRequiredParam(t *testing.T) {
	tests := []struct {
		name        string
		paramName   string
		paramValue  string
		expectError bool
	}{
		{"present", "id", "conv-7f3a", false},
		{"missing", "id", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Params = gin.Params{
				{Key: tt.paramName, Value: tt.paramValue},
			}

			result, err := RequiredParam(c, tt.paramName)

			if tt.expectError {
				assert.Error(t, err, "Should return error for missing param")
				assert.Empty(t, result, "Result should be empty on error")
			} else {
				assert.NoError(t, err, "Should not return error for present param")
				assert.Equal(t, tt.paramValue, result, "Result should match param value")
			}
		})
	}
}

func TestSuccessResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SuccessResponse(c, map[string]string{"title": "New Conversation"})

	assert.Equal(t, http.StatusOK, w.Code, "Should return 200 status")
	assert.Contains(t, w.Body.String(), "\"success\":true", "Response should contain success:true")
	assert.Contains(t, w.Body.String(), "\"title\":\"New Conversation\"", "Response should contain data")
}

func TestCreatedResponse(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	CreatedResponse(c, map[string]string{"id": "conv-7f3a"})

	assert.Equal(t, http.StatusCreated, w.Code, "Should return 201 status")
	assert.Contains(t, w.Body.String(), "\"success\":true", "Response should contain success:true")
	assert.Contains(t, w.Body.String(), "\"id\":\"conv-7f3a\"", "Response should contain data")
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name           string
		errorFunc      func(*gin.Context, error)
		expectedStatus int
	}{
		{"bad_request", BadRequestError, http.StatusBadRequest},
		{"not_found", NotFoundError, http.StatusNotFound},
		{"conflict", ConflictError, http.StatusConflict},
		{"internal", InternalServerError, http.StatusInternalServerError},
		{"service_unavailable", ServiceUnavailableError, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			tt.errorFunc(c, assert.AnError)

			assert.Equal(t, tt.expectedStatus, w.Code, "Should return correct status code")
			assert.Contains(t, w.Body.String(), "\"success\":false", "Response should contain success:false")
			assert.Contains(t, w.Body.String(), "\"error\":", "Response should contain error field")
		})
	}
}

func TestSuccessResponseWithMeta(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	data := []map[string]string{{"id": "conv-1"}, {"id": "conv-2"}}
	meta := map[string]interface{}{"limit": 20, "offset": 0}
	SuccessResponseWithMeta(c, data, meta)

	assert.Equal(t, http.StatusOK, w.Code, "Should return 200 status")
	assert.Contains(t, w.Body.String(), "\"success\":true", "Response should contain success:true")
	assert.Contains(t, w.Body.String(), "\"id\":\"conv-1\"", "Response should contain data")
	assert.Contains(t, w.Body.String(), "\"limit\":20", "Response should contain pagination meta")
	assert.Contains(t, w.Body.String(), "\"offset\":0", "Response should contain pagination meta")
}

func TestCORSMiddleware(t *testing.T) {
	config := MiddlewareConfig{
		EnableCORS:     true,
		AllowedOrigins: []string{"http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}

	middleware := CORSMiddleware(config)

	// Preflight request short-circuits with 204.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("OPTIONS", "/api/chat/send", nil)

	middleware(c)

	assert.Equal(t, http.StatusNoContent, w.Code, "OPTIONS request should return 204")
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestTimeoutMiddleware(t *testing.T) {
	config := TimeoutConfig{
		Default: 15 * time.Second,
		Short:   3 * time.Second,
		Long:    45 * time.Second,
	}

	middleware := TimeoutMiddleware(config)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/conversations", nil)

	middleware(c)

	value, exists := c.Get(string(TimeoutConfigKey))
	assert.True(t, exists, "Timeout config should be set in context")

	timeoutConfig, ok := value.(TimeoutConfig)
	assert.True(t, ok, "Value should be TimeoutConfig type")
	assert.Equal(t, config.Default, timeoutConfig.Default, "Config should match")
}

func TestGetTimeoutForOperation(t *testing.T) {
	config := TimeoutConfig{
		Default: 15 * time.Second,
		Short:   3 * time.Second,
		Long:    45 * time.Second,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(string(TimeoutConfigKey), config)

	tests := []struct {
		operationType string
		expected      time.Duration
	}{
		{constants.OperationTypeStorage, config.Default},
		{constants.OperationTypeMessaging, config.Short},
		{constants.OperationTypeInference, config.Long},
		{"unknown", config.Default},
	}

	for _, tt := range tests {
		t.Run(tt.operationType, func(t *testing.T) {
			timeout := GetTimeoutForOperation(c, tt.operationType)
			assert.Equal(t, tt.expected, timeout, "Should return correct timeout for operation type")
		})
	}

	// Without middleware the helper falls back to the package defaults.
	w2 := httptest.NewRecorder()
	bare, _ := gin.CreateTestContext(w2)
	assert.Equal(t, DefaultTimeouts.Default, GetTimeoutForOperation(bare, constants.OperationTypeStorage))
}

func TestWithOperationContext(t *testing.T) {
	config := TimeoutConfig{
		Default: 15 * time.Second,
		Short:   3 * time.Second,
		Long:    45 * time.Second,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(string(TimeoutConfigKey), config)

	ctx, cancel := WithOperationContext(c, constants.OperationTypeStorage)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(t, ok, "Context should have a deadline")
	assert.True(t, time.Until(deadline) <= config.Default, "Deadline should be within expected timeout")
}
