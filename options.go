package pgwire

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// OptionFn is the functional options pattern used throughout this package to
// configure a Session before it opens.
type OptionFn func(*Settings)

// WithApplicationName sets the application_name startup parameter.
func WithApplicationName(name string) OptionFn {
	return func(s *Settings) { s.ApplicationName = name }
}

// WithConnectTimeout bounds the initial handshake only.
func WithConnectTimeout(d time.Duration) OptionFn {
	return func(s *Settings) { s.ConnectTimeout = d }
}

// WithQueryTimeout applies a deadline to each statement via a scheduled
// cancel request, per §4.5.
func WithQueryTimeout(d time.Duration) OptionFn {
	return func(s *Settings) { s.QueryTimeout = d }
}

// WithClientEncoding overrides the startup client_encoding parameter.
func WithClientEncoding(enc ClientEncoding) OptionFn {
	return func(s *Settings) { s.ClientEncoding = enc }
}

// WithSSLMode selects TLS negotiation behavior during startup.
func WithSSLMode(mode SSLMode) OptionFn {
	return func(s *Settings) { s.SSLMode = mode }
}

// WithReplicationMode requests physical or logical replication at startup.
func WithReplicationMode(mode ReplicationMode) OptionFn {
	return func(s *Settings) { s.ReplicationMode = mode }
}

// WithRegistry overrides the default type codec registry.
func WithRegistry(registry *Registry) OptionFn {
	return func(s *Settings) { s.Registry = registry }
}

// WithLogger attaches a *zap.Logger to the session; the default is
// zap.NewNop().
func WithLogger(logger *zap.Logger) OptionFn {
	return func(s *Settings) { s.logger = logger }
}

// LogRotation configures size/age/count-based rotation for a file-backed
// session logger, matching the rotation knobs lumberjack.Logger exposes.
type LogRotation struct {
	// Filename is the log file path. Required.
	Filename string
	// MaxSizeMB is the maximum size in megabytes before a log file is rotated.
	MaxSizeMB int
	// MaxBackups is the maximum number of rotated files to retain.
	MaxBackups int
	// MaxAgeDays is the maximum age in days to retain a rotated file.
	MaxAgeDays int
	// Compress gzips rotated files once they age out.
	Compress bool
}

// WithLogFile builds a *zap.Logger writing JSON-encoded entries to a
// rotating file via lumberjack, and attaches it to the session. Use
// WithLogger instead when the caller already manages its own *zap.Logger.
func WithLogFile(rotation LogRotation) OptionFn {
	return func(s *Settings) {
		sink := &lumberjack.Logger{
			Filename:   rotation.Filename,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
			Compress:   rotation.Compress,
		}

		encoder := zap.NewProductionEncoderConfig()
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), zapcore.AddSync(sink), zap.InfoLevel)
		s.logger = zap.New(core)
	}
}
