// Package log provides structured logging with sync-session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the sync pipeline (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Session identifies one client session in every log entry.
type Session struct {
	// ID is a per-process session identifier (uuid).
	ID string
	// CI is the detected CI provider, or "" outside CI.
	CI string
	// BuildID is set once the server assigns a build.
	BuildID string
}

// Logger provides structured logging with session context.
//
// Use this for the sync pipeline. For CLI surfaces, use Sugar().
type Logger struct {
	zap *zap.Logger
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with session context.
// Output defaults to os.Stderr.
func NewLogger(session Session) *Logger {
	return newLoggerWithWriter(session, os.Stderr, zapcore.DebugLevel)
}

// NewLoggerLevel creates a stderr logger that drops entries below level.
func NewLoggerLevel(session Session, level zapcore.Level) *Logger {
	return newLoggerWithWriter(session, os.Stderr, level)
}

// NewLoggerWriter creates a logger writing to w that drops entries below level.
func NewLoggerWriter(session Session, w io.Writer, level zapcore.Level) *Logger {
	return newLoggerWithWriter(session, w, level)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w, zapcore.DebugLevel)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

// WithBuild returns a logger that also carries build_id.
func (l *Logger) WithBuild(buildID string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("build_id", buildID))}
}

func newCore(w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(session Session, w io.Writer, level zapcore.Level) *Logger {
	contextFields := []zap.Field{
		zap.String("session_id", session.ID),
	}
	if session.CI != "" {
		contextFields = append(contextFields, zap.String("ci", session.CI))
	}
	if session.BuildID != "" {
		contextFields = append(contextFields, zap.String("build_id", session.BuildID))
	}

	zapLogger := zap.New(newCore(w, level)).With(contextFields...)
	return &Logger{zap: zapLogger}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
