// Package logging wraps go.uber.org/zap into the engine's fixlog.Logger
// interface, mirroring the teacher's pkg/utils.InitLogger wrapper shape
// (one package-level constructor handing back a shared logger) and the
// Rust prototype's event-log/message-log split
// (_examples/original_source/src/logging.rs), reimplemented as two named
// zap cores instead of two raw files.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kprime/fixengine/fixlog"
)

// zapWriter opens (creating if needed) dir/filename for append, matching
// the Rust prototype's Logger.open_log_file. When dir is empty, events
// are written to stderr instead — useful for tests and quick starts.
func zapWriter(dir, filename string) *os.File {
	if dir == "" {
		return os.Stderr
	}
	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stderr
	}
	return f
}

// Config controls where and how verbosely the engine logs.
type Config struct {
	Directory   string
	Level       string
	LogEvents   bool
	LogMessages bool
}

type logger struct {
	events   *zap.SugaredLogger
	messages *zap.SugaredLogger
	cfg      Config
}

// New builds a fixlog.Logger backed by two zap cores: "event" for
// lifecycle/session transitions and "message" for raw wire traffic,
// matching the event.log/message.log split of the Rust prototype.
func New(cfg Config) (fixlog.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	base := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(zapWriter(cfg.Directory, "event.log")),
		level,
	))

	msgCore := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(zapWriter(cfg.Directory, "message.log")),
		level,
	))

	return &logger{
		events:   base.Sugar().With("component", "event"),
		messages: msgCore.Sugar().With("component", "message"),
		cfg:      cfg,
	}, nil
}

func (l *logger) Debug(msg string, kv ...interface{}) {
	if l.cfg.LogEvents {
		l.events.Debugw(msg, kv...)
	}
}

func (l *logger) Info(msg string, kv ...interface{}) {
	if l.cfg.LogEvents {
		l.events.Infow(msg, kv...)
	}
}

func (l *logger) Warn(msg string, kv ...interface{}) {
	if l.cfg.LogEvents {
		l.events.Warnw(msg, kv...)
	}
}

func (l *logger) Error(msg string, kv ...interface{}) {
	l.events.Errorw(msg, kv...) // errors always surface regardless of LogEvents
}

// LogMessage records raw wire traffic when LogMessages is enabled,
// matching the Rust prototype's Logger.log_message(direction, message).
func (l *logger) LogMessage(direction, raw string) {
	if l.cfg.LogMessages {
		l.messages.Infow("wire", "direction", direction, "raw", raw)
	}
}
