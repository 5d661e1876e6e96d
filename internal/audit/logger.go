package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/insurelens/insurelens-ai/internal/db"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogQuery logs query lifecycle events
	LogQueryRouted(ctx context.Context, conversationID, intent, tool string) error
	LogQueryAnswered(ctx context.Context, conversationID string, duration time.Duration) error
	LogQueryFailed(ctx context.Context, conversationID string, err error) error

	// LogTool logs tool invocation events
	LogToolInvoked(ctx context.Context, tool string, duration time.Duration) error
	LogToolRetried(ctx context.Context, tool, reason string) error
	LogToolFailed(ctx context.Context, tool string, err error) error

	// LogPremium logs premium calculation events
	LogPremiumCalculated(ctx context.Context, product, composition string, sumInsured int64, total string) error

	// LogRateTable logs rate table lifecycle events
	LogRateTableReloaded(ctx context.Context, product string, tables int) error
	LogRateTableRejected(ctx context.Context, product string, err error) error

	// LogSessionCleared logs conversation history removal
	LogSessionCleared(ctx context.Context, conversationID string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	store       db.AuditStore
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewLogger creates a new audit logger. Events are written to a rotated JSON
// log file and, when store is non-nil, also persisted through it for querying.
func NewLogger(config *Config, store db.AuditStore) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		store:       store,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = GetCorrelationID(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)

		if l.store != nil {
			if err := l.store.AppendAuditEvent(context.Background(), toRecord(event)); err != nil {
				l.appLogger.Error("failed to persist audit event",
					zap.Error(err),
					zap.String("event_type", string(event.EventType)),
				)
			}
		}
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// toRecord converts an event to its DB representation.
func toRecord(e *Event) *db.AuditRecord {
	metadata := "{}"
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			metadata = string(b)
		}
	}
	description := e.Description
	if e.Error != "" {
		description = fmt.Sprintf("%s: %s", description, e.Error)
	}
	return &db.AuditRecord{
		CorrelationID: e.CorrelationID,
		EventType:     string(e.EventType),
		Description:   description,
		Resource:      e.Resource,
		Action:        e.Action,
		Result:        string(e.Result),
		UserID:        e.User,
		Metadata:      metadata,
		Timestamp:     e.Timestamp,
	}
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogQueryRouted logs a query being dispatched to a tool
func (l *auditLogger) LogQueryRouted(ctx context.Context, conversationID, intent, tool string) error {
	event := NewEvent(EventQueryRouted).
		WithConversationID(conversationID).
		WithResource("tool/"+tool, "tool").
		WithAction("route").
		WithResult(ResultSuccess).
		WithMetadata("intent", intent).
		WithDescription(fmt.Sprintf("Query classified as %s and routed to %s", intent, tool))

	return l.Log(ctx, event)
}

// LogQueryAnswered logs a completed query
func (l *auditLogger) LogQueryAnswered(ctx context.Context, conversationID string, duration time.Duration) error {
	event := NewEvent(EventQueryAnswered).
		WithConversationID(conversationID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription("Query answered")

	return l.Log(ctx, event)
}

// LogQueryFailed logs a query that could not be answered
func (l *auditLogger) LogQueryFailed(ctx context.Context, conversationID string, err error) error {
	event := NewEvent(EventQueryFailed).
		WithConversationID(conversationID).
		WithError(err, "query_error").
		WithDescription("Query failed")

	return l.Log(ctx, event)
}

// LogToolInvoked logs a successful tool invocation
func (l *auditLogger) LogToolInvoked(ctx context.Context, tool string, duration time.Duration) error {
	event := NewEvent(EventToolInvoked).
		WithResource("tool/"+tool, "tool").
		WithAction("invoke").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Tool %s invoked", tool))

	return l.Log(ctx, event)
}

// LogToolRetried logs a transient tool failure being retried
func (l *auditLogger) LogToolRetried(ctx context.Context, tool, reason string) error {
	event := NewEvent(EventToolRetried).
		WithResource("tool/"+tool, "tool").
		WithAction("retry").
		WithResult(ResultPending).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Tool %s retried after transient failure", tool))

	return l.Log(ctx, event)
}

// LogToolFailed logs a failed tool invocation
func (l *auditLogger) LogToolFailed(ctx context.Context, tool string, err error) error {
	event := NewEvent(EventToolFailed).
		WithResource("tool/"+tool, "tool").
		WithAction("invoke").
		WithError(err, "tool_error").
		WithDescription(fmt.Sprintf("Tool %s failed", tool))

	return l.Log(ctx, event)
}

// LogPremiumCalculated logs an issued premium quote
func (l *auditLogger) LogPremiumCalculated(ctx context.Context, product, composition string, sumInsured int64, total string) error {
	event := NewEvent(EventPremiumCalculated).
		WithResource("product/"+product, "product").
		WithAction("calculate").
		WithResult(ResultSuccess).
		WithMetadata("composition", composition).
		WithMetadata("sum_insured", sumInsured).
		WithMetadata("total_premium", total).
		WithDescription(fmt.Sprintf("Premium calculated for %s (%s)", product, composition))

	return l.Log(ctx, event)
}

// LogRateTableReloaded logs a successful rate table swap
func (l *auditLogger) LogRateTableReloaded(ctx context.Context, product string, tables int) error {
	event := NewEvent(EventRateTableReloaded).
		WithResource("ratetable/"+product, "ratetable").
		WithAction("reload").
		WithResult(ResultSuccess).
		WithMetadata("tables", tables).
		WithDescription(fmt.Sprintf("Rate tables reloaded for %s", product))

	return l.Log(ctx, event)
}

// LogRateTableRejected logs a rate table load failure; the previous tables
// stay in service.
func (l *auditLogger) LogRateTableRejected(ctx context.Context, product string, err error) error {
	event := NewEvent(EventRateTableRejected).
		WithResource("ratetable/"+product, "ratetable").
		WithAction("reload").
		WithError(err, "ratetable_error").
		WithDescription(fmt.Sprintf("Rate table reload rejected for %s, previous tables kept", product))

	return l.Log(ctx, event)
}

// LogSessionCleared logs removal of a conversation's history
func (l *auditLogger) LogSessionCleared(ctx context.Context, conversationID string) error {
	event := NewEvent(EventSessionCleared).
		WithConversationID(conversationID).
		WithAction("clear").
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Session %s cleared", conversationID))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})

	return l.Sync()
}

type ctxKey string

const correlationIDKey ctxKey = "correlation_id"

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
