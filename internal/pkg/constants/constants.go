package constants

import "time"

// Application constants
const (
	// Service identification
	ServiceName    = "chatkit"
	ServiceVersion = "v1.0.0"
	APIVersion     = "v1"
)

// Default timeouts
const (
	DefaultHTTPTimeout      = 10 * time.Second
	ShortHTTPTimeout        = 5 * time.Second
	LongHTTPTimeout         = 30 * time.Second
	DatabaseTimeout         = 10 * time.Second
	MessagingTimeout        = 5 * time.Second
	ReachabilityTimeout     = 5 * time.Second
	GracefulShutdownTimeout = 30 * time.Second
)

// Streaming and display
const (
	// Reasoning segment markers emitted by thinking-capable models.
	ThinkingOpenMarker  = "<think>"
	ThinkingCloseMarker = "</think>"

	// Visible-content batching: flush when this many characters have
	// accumulated, or when the interval elapses, whichever comes first.
	DefaultBatchThreshold = 30
	DefaultFlushInterval  = 200 * time.Millisecond

	// Suffixes appended to a partial response on early termination.
	StoppedByUserSuffix    = "\n\n*(Response stopped by user)*"
	ResponseErrorSuffixFmt = "\n\n*(Error during response: %s)*"
)

// Reachability polling
const (
	DefaultReachabilityInterval = 10 * time.Second
)

// Title synthesis
const (
	// TitleContextMessages is the number of leading non-system messages
	// given to the model when synthesizing a title.
	TitleContextMessages = 4
	// TitleFallbackLength is the prefix of the first user message used by
	// the deterministic fallback.
	TitleFallbackLength = 35
)

// Pagination defaults
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	MinPageLimit     = 1
)

// Database configuration
const (
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 25
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Migration configuration
	MigrationsTableName = "schema_migrations"
)

// HTTP status messages
const (
	StatusOK                 = "ok"
	StatusError              = "error"
	StatusProcessing         = "processing"
	StatusServiceUnavailable = "service_unavailable"
)

// Error messages
const (
	ErrMsgConversationNotFound = "conversation not found"
	ErrMsgMessageNotFound      = "message not found"
	ErrMsgInvalidRequest       = "invalid request"
	ErrMsgInternalServer       = "internal server error"
	ErrMsgServiceUnavailable   = "service unavailable"
)

// Success messages
const (
	MsgConversationDeleted  = "conversation deleted"
	MsgConversationsCleared = "all conversations deleted"
	MsgGenerationStopped    = "generation stopped"
	MsgModelsRefreshed      = "models refreshed"
)

// Context keys
const (
	ContextKeyConversationID = "conversation_id"
	ContextKeyMessageID      = "message_id"
	ContextKeyRequestID      = "request_id"
	ContextKeyTimeout        = "timeout"
	ContextKeyOperationType  = "operation_type"
)

// Operation types for timeout selection
const (
	OperationTypeStorage   = "storage"
	OperationTypeMessaging = "messaging"
	OperationTypeInference = "inference"
	OperationTypeDefault   = "default"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// WebSocket configuration
const (
	WebSocketWriteWait      = 10 * time.Second
	WebSocketPongWait       = 60 * time.Second
	WebSocketPingPeriod     = (WebSocketPongWait * 9) / 10
	WebSocketMaxMessageSize = 512
)

// File and directory paths
const (
	DefaultDataDir        = "./data"
	DefaultMigrationsPath = "./internal/adapters/storage/sqlite/migrations"
	DefaultDBPath         = "./data/chatkit.db"
)

// Environment variable names
const (
	EnvPort           = "CHATKIT_SERVER_PORT"
	EnvHost           = "CHATKIT_SERVER_HOST"
	EnvLogLevel       = "CHATKIT_LOGGING_LEVEL"
	EnvLogFormat      = "CHATKIT_LOGGING_FORMAT"
	EnvDBPath         = "CHATKIT_DATABASE_PATH"
	EnvNATSURL        = "CHATKIT_NATS_URL"
	EnvEndpointHost   = "CHATKIT_ENDPOINT_HOST"
	EnvEndpointPort   = "CHATKIT_ENDPOINT_PORT"
	EnvEndpointAPIKey = "CHATKIT_ENDPOINT_API_KEY"
	EnvDefaultModel   = "CHATKIT_CHAT_DEFAULT_MODEL"
)

// Validation constraints
const (
	MinConversationTitleLength = 1
	MaxConversationTitleLength = 200
	MinMessageContentLength    = 1
	MaxMessageContentLength    = 100000
	MinModelNameLength         = 1
	MaxModelNameLength         = 100
)

// Cache TTLs
const (
	ModelCacheTTL = 5 * time.Minute
)
