package pgwire

import (
	"time"

	"go.uber.org/zap"
)

// SSLMode selects how a session negotiates TLS during startup.
type SSLMode int

const (
	// SSLDisable never sends an SSLRequest; the session stays on the raw
	// transport.
	SSLDisable SSLMode = iota
	// SSLRequire requires the backend to accept the SSLRequest; the
	// session fails startup if the backend responds 'N'.
	SSLRequire
	// SSLVerifyFull requires TLS and full certificate verification.
	//
	// Open question (see DESIGN.md): verify-ca and verify-full both map to
	// this single mode, silently upgrading a verify-ca request to full
	// verification. Kept unified per the source's own behavior rather than
	// introducing a distinct verify-ca mode.
	SSLVerifyFull
)

// ReplicationMode selects the startup replication parameter.
type ReplicationMode string

const (
	ReplicationNone     ReplicationMode = ""
	ReplicationPhysical ReplicationMode = "true"
	ReplicationLogical  ReplicationMode = "database"
)

// ClientEncoding is the startup client_encoding parameter.
type ClientEncoding string

const (
	EncodingUTF8   ClientEncoding = "UTF8"
	EncodingLatin1 ClientEncoding = "LATIN1"
)

// Endpoint is the immutable identity of a backend: the tuple a pool keys
// connections by.
type Endpoint struct {
	Host     string
	Port     uint16
	Database string
	Username string
	Password string
}

// Settings carries the recognized connection options from §3.
type Settings struct {
	ApplicationName string
	ConnectTimeout  time.Duration
	QueryTimeout    time.Duration
	ClientEncoding  ClientEncoding
	SSLMode         SSLMode
	ReplicationMode ReplicationMode
	Registry        *Registry
	logger          *zap.Logger
}

// DefaultSettings returns the settings a session uses when none are
// supplied: no timeouts, UTF-8, SSL disabled, no replication, the package
// default type registry.
func DefaultSettings() Settings {
	return Settings{
		ClientEncoding: EncodingUTF8,
		SSLMode:        SSLDisable,
		Registry:       DefaultRegistry(),
		logger:         zap.NewNop(),
	}
}
