package logger

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiplayer/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingFilePath is returned when file logging is requested without a path.
var ErrMissingFilePath = errors.New("file destination requires a path")

// ZapLogger implements contracts.Logger on top of the Uber zap logger.
type ZapLogger struct {
	sink  *atomic.Pointer[zap.Logger] // Shared with named children so SetDestination reaches them.
	level zap.AtomicLevel             // Shared with named children so SetLevel applies to all of them.
	name  string
	named atomic.Pointer[namedLogger]
}

// namedLogger caches the sink with this logger's name applied.
type namedLogger struct {
	root   *zap.Logger
	logger *zap.Logger
}

func newZapLogger(l *zap.Logger, level zap.AtomicLevel) *ZapLogger {
	sink := &atomic.Pointer[zap.Logger]{}
	sink.Store(l)
	return &ZapLogger{sink: sink, level: level}
}

// NewZapLogger creates a production zap logger writing JSON to stderr.
func NewZapLogger() contracts.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return NewNopLogger()
	}
	return newZapLogger(logger, level)
}

// NewZapLoggerFromCore wraps an existing zapcore.Core, typically an observer in tests.
func NewZapLoggerFromCore(core zapcore.Core) contracts.Logger {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return newZapLogger(zap.New(core), level)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() contracts.Logger {
	return newZapLogger(zap.NewNop(), zap.NewAtomicLevelAt(zapcore.FatalLevel))
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.log(zapcore.InfoLevel, msg, fields...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.log(zapcore.ErrorLevel, msg, fields...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.log(zapcore.DebugLevel, msg, fields...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.log(zapcore.WarnLevel, msg, fields...)
}

// Field returns a new instance of Field
func (z *ZapLogger) Field() contracts.Field {
	return zapField{}
}

// Named returns a child logger that shares the level and destination of its parent.
func (z *ZapLogger) Named(name string) contracts.Logger {
	full := name
	if z.name != "" {
		full = z.name + "." + name
	}
	return &ZapLogger{sink: z.sink, level: z.level, name: full}
}

// current returns the shared sink with this logger's name applied.
func (z *ZapLogger) current() *zap.Logger {
	root := z.sink.Load()
	if z.name == "" {
		return root
	}
	if c := z.named.Load(); c != nil && c.root == root {
		return c.logger
	}
	c := &namedLogger{root: root, logger: root.Named(z.name)}
	z.named.Store(c)
	return c.logger
}

// SetLevel sets the logging level
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.SetLevel(zapcore.Level(level))
}

// SetDestination rebuilds the underlying logger to write to the console or a file.
// The change applies to every logger derived from the same root through Named,
// including ones already handed out, and is safe while others are logging.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = z.level
	switch dest {
	case contracts.ConsoleLog:
		cfg.Encoding = "console"
		cfg.OutputPaths = []string{"stderr"}
	case contracts.FileLog:
		if len(filePath) == 0 || filePath[0] == "" {
			return ErrMissingFilePath
		}
		cfg.OutputPaths = []string{filePath[0]}
	default:
		return fmt.Errorf("unknown log destination %q", dest)
	}

	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	old := z.sink.Swap(logger)
	_ = old.Sync()
	return nil
}

// Sync flushes any buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.sink.Load().Sync()
}

// log checks the shared level and forwards the converted fields to zap.
func (z *ZapLogger) log(level zapcore.Level, msg string, fields ...contracts.Field) {
	if !z.level.Enabled(level) {
		return
	}
	if ce := z.current().Check(level, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func toZapFields(fields []contracts.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if zf, ok := f.(zapField); ok {
			out = append(out, zf.field)
		}
	}
	return out
}

// zapField implements contracts.Field
type zapField struct {
	field zap.Field
}

func (f zapField) Bool(key string, val bool) contracts.Field {
	return zapField{zap.Bool(key, val)}
}

func (f zapField) Int(key string, val int) contracts.Field {
	return zapField{zap.Int(key, val)}
}

func (f zapField) Float64(key string, val float64) contracts.Field {
	return zapField{zap.Float64(key, val)}
}

func (f zapField) String(key string, val string) contracts.Field {
	return zapField{zap.String(key, val)}
}

func (f zapField) Time(key string, val time.Time) contracts.Field {
	return zapField{zap.Time(key, val)}
}

func (f zapField) Duration(key string, val time.Duration) contracts.Field {
	return zapField{zap.Duration(key, val)}
}

func (f zapField) Int64(key string, val int64) contracts.Field {
	return zapField{zap.Int64(key, val)}
}

func (f zapField) Error(key string, val error) contracts.Field {
	return zapField{zap.NamedError(key, val)}
}

func (f zapField) Uint64(key string, val uint64) contracts.Field {
	return zapField{zap.Uint64(key, val)}
}

func (f zapField) Uint8(key string, val uint8) contracts.Field {
	return zapField{zap.Uint8(key, val)}
}
