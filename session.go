package pgwire

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/riftpg/pgwire/pkg/buffer"
	"github.com/riftpg/pgwire/pkg/types"
)

// Transport is the bidirectional byte stream a Session speaks the wire
// protocol over. TCP dialing and TLS are external collaborators (§1
// Non-goals); callers supply a Dialer that returns a connected Transport
// (TCPDialer in nettransport.go is one).
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// TLSUpgrader is implemented by a Transport that can replace itself with a
// TLS-wrapped Transport in response to the backend's SSLRequest 'S' reply.
type TLSUpgrader interface {
	StartTLS(ctx context.Context) (Transport, error)
}

// State is the Session's lifecycle, per §3.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateReady
	StateBusy
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateBusy:
		return "Busy"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session owns one transport, one receive parser, one send queue (enforced
// by being single-threaded through its public methods), a prepared-statement
// cache keyed by SQL text, and a monotonically increasing portal/statement
// name counter.
type Session struct {
	mu sync.Mutex

	endpoint Endpoint
	settings Settings
	logger   *zap.Logger

	transport Transport
	reader    *buffer.Reader
	writer    *buffer.Writer

	state atomic.Int32

	backendPID    int32
	backendSecret int32
	parameters    map[string]string

	statements *statementCache
	nameSeq    uint64

	tx txContext

	notices       []*subscriber[pgwireerrEvent]
	notifications []*subscriber[Notification]

	dialer Dialer
}

// Dialer opens a fresh Transport to an Endpoint. Used for the auxiliary
// cancel-request connection in §4.5, since a Session's own transport is
// busy waiting on the statement it is trying to cancel.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint) (Transport, error)
}

// pgwireerrEvent is the payload delivered to a NoticeResponse subscriber: the
// same field map a ServerError carries, without being escalated to an error.
type pgwireerrEvent struct {
	Severity string
	Message  string
	Detail   string
	Hint     string
}

// Notification is a LISTEN/NOTIFY payload delivered to subscribers
// registered via OnNotification.
type Notification struct {
	ProcessID int32
	Channel   string
	Payload   string
}

// Open performs the startup handshake (§4.5) over transport and returns a
// Ready Session. opts apply on top of DefaultSettings().
func Open(ctx context.Context, dialer Dialer, endpoint Endpoint, opts ...OptionFn) (*Session, error) {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.logger == nil {
		settings.logger = zap.NewNop()
	}

	dialCtx := ctx
	if settings.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, settings.ConnectTimeout)
		defer cancel()
	}

	transport, err := dialer.Dial(dialCtx, endpoint)
	if err != nil {
		return nil, newError(KindConnectionLost, err)
	}

	sess := &Session{
		endpoint:   endpoint,
		settings:   settings,
		logger:     settings.logger,
		transport:  transport,
		reader:     buffer.NewReader(settings.logger, transport, buffer.DefaultBufferSize),
		writer:     buffer.NewWriter(settings.logger, transport),
		statements: newStatementCache(),
		dialer:     dialer,
		parameters: make(map[string]string),
	}
	sess.state.Store(int32(StateConnecting))
	settings.Registry.seal()

	if err := sess.handshake(dialCtx); err != nil {
		sess.transport.Close()
		sess.state.Store(int32(StateClosed))
		return nil, err
	}

	sess.state.Store(int32(StateReady))
	return sess, nil
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// BackendPID and BackendSecret are captured once from BackendKeyData at
// startup and used to build a CancelRequest.
func (s *Session) BackendPID() int32    { return s.backendPID }
func (s *Session) BackendSecret() int32 { return s.backendSecret }

// Parameter returns a ParameterStatus value reported by the backend, or ""
// if it was never reported.
func (s *Session) Parameter(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parameters[name]
}

// OnNotice registers a callback for NoticeResponse messages. Delivery is
// best-effort: see events.go for the bounded, drop-on-overflow channel this
// feeds.
func (s *Session) OnNotice(fn func(severity, message, detail, hint string)) {
	s.notices = append(s.notices, newSubscriber(func(e pgwireerrEvent) {
		fn(e.Severity, e.Message, e.Detail, e.Hint)
	}))
}

// OnNotification registers a callback for NotificationResponse (LISTEN/
// NOTIFY) messages.
func (s *Session) OnNotification(fn func(Notification)) {
	s.notifications = append(s.notifications, newSubscriber(fn))
}

// Close sends Terminate and drops the transport. Safe to call more than
// once.
func (s *Session) Close() error {
	if s.State() == StateClosed {
		return nil
	}

	s.writer.Start(types.ClientTerminate)
	_ = s.writer.End()

	s.state.Store(int32(StateClosed))
	for _, sub := range s.notices {
		sub.close()
	}
	for _, sub := range s.notifications {
		sub.close()
	}
	return s.transport.Close()
}

func (s *Session) fail(kind Kind, err error) error {
	s.state.Store(int32(StateClosed))
	return newError(kind, err)
}

func (s *Session) nextName(prefix string) string {
	n := atomic.AddUint64(&s.nameSeq, 1)
	return fmt.Sprintf("%s%d", prefix, n)
}

// statementCache is the per-session prepared statement cache, keyed by SQL
// text verbatim per §9's "Statement cache keying" design note. Keys are
// hashed with xxhash to collapse the map key from a string to a uint64;
// collision risk at prepared-statement cache scale is negligible and is
// accepted here rather than carrying the full SQL text as the map key.
type statementCache struct {
	mu      sync.Mutex
	entries map[uint64]*PreparedStatement
}

func newStatementCache() *statementCache {
	return &statementCache{entries: make(map[uint64]*PreparedStatement)}
}
