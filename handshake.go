package pgwire

import (
	"context"
	"fmt"

	"github.com/riftpg/pgwire/internal/scram"
	"github.com/riftpg/pgwire/pkg/buffer"
	"github.com/riftpg/pgwire/pkg/types"
)

// protocolVersion is the frontend/backend protocol version this package
// speaks: major 3, minor 0.
const protocolVersion int32 = 3 << 16

// sslRequestCode is the magic number libpq sends in place of a protocol
// version to ask the backend whether it will accept TLS.
const sslRequestCode int32 = 80877103

// authType mirrors the sub-kind carried by an AuthenticationRequest ('R')
// message. 0 concludes authentication; SASLFinal carries the server's
// verifier and needs no reply; the other sub-kinds ask the frontend to send
// one more PasswordMessage (or reject the exchange).
type authType int32

const (
	authOK                authType = 0
	authCleartextPassword authType = 3
	authMD5Password       authType = 5
	authSASL              authType = 10
	authSASLContinue      authType = 11
	authSASLFinal         authType = 12
)

// handshake drives the startup sequence described in §4.5: optional SSL
// negotiation, the StartupMessage, authentication, and the initial
// ParameterStatus/BackendKeyData/ReadyForQuery exchange.
func (s *Session) handshake(ctx context.Context) error {
	s.state.Store(int32(StateConnecting))

	if s.settings.SSLMode != SSLDisable {
		if err := s.negotiateSSL(ctx); err != nil {
			return err
		}
	}

	if err := s.sendStartup(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	s.state.Store(int32(StateAuthenticating))
	if err := s.authenticate(ctx); err != nil {
		return err
	}

	return s.awaitReady(ctx)
}

// negotiateSSL sends the SSLRequest and reacts to the single-byte reply
// ('S' accepts, 'N' declines). A Transport that wants to support TLS
// upgrade must also implement TLSUpgrader.
func (s *Session) negotiateSSL(ctx context.Context) error {
	s.writer.StartUntyped()
	s.writer.AddInt32(sslRequestCode)
	if err := s.writer.EndUntyped(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	reply := make([]byte, 1)
	if _, err := s.transport.Read(reply); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	switch reply[0] {
	case 'S':
		upgrader, ok := s.transport.(TLSUpgrader)
		if !ok {
			return s.fail(KindProtocol, fmt.Errorf("pgwire: backend accepted SSLRequest but transport does not support TLS upgrade"))
		}

		upgraded, err := upgrader.StartTLS(ctx)
		if err != nil {
			return s.fail(KindConnectionLost, err)
		}

		s.transport = upgraded
		s.reader = buffer.NewReader(s.logger, upgraded, buffer.DefaultBufferSize)
		s.writer = buffer.NewWriter(s.logger, upgraded)
		return nil
	case 'N':
		if s.settings.SSLMode == SSLRequire || s.settings.SSLMode == SSLVerifyFull {
			return s.fail(KindProtocol, fmt.Errorf("pgwire: backend declined SSLRequest but ssl mode requires TLS"))
		}
		return nil
	default:
		return s.fail(KindProtocol, fmt.Errorf("pgwire: unexpected SSLRequest reply byte %q", reply[0]))
	}
}

// sendStartup writes the StartupMessage: protocol version followed by
// key/value parameter pairs, terminated by a zero byte.
func (s *Session) sendStartup() error {
	s.writer.StartUntyped()
	s.writer.AddInt32(protocolVersion)

	writeParam := func(key, value string) {
		s.writer.AddString(key)
		s.writer.AddNullTerminate()
		s.writer.AddString(value)
		s.writer.AddNullTerminate()
	}

	writeParam("user", s.endpoint.Username)
	if s.endpoint.Database != "" {
		writeParam("database", s.endpoint.Database)
	}
	if s.settings.ApplicationName != "" {
		writeParam("application_name", s.settings.ApplicationName)
	}
	if s.settings.ClientEncoding != "" {
		writeParam("client_encoding", string(s.settings.ClientEncoding))
	}
	if s.settings.ReplicationMode != ReplicationNone {
		writeParam("replication", string(s.settings.ReplicationMode))
	}

	s.writer.AddByte(0)
	return s.writer.EndUntyped()
}

// authenticate reads AuthenticationRequest messages until authOK, dispatching
// cleartext and SCRAM-SHA-256 sub-protocols as required.
func (s *Session) authenticate(ctx context.Context) error {
	for {
		typed, _, err := s.reader.ReadTypedMsg()
		if err != nil {
			return s.fail(KindConnectionLost, err)
		}

		switch typed {
		case types.ServerErrorResponse:
			return s.fail(KindAuth, s.readError())
		case types.ServerAuth:
			done, err := s.handleAuthMessage()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		default:
			return s.fail(KindProtocol, fmt.Errorf("pgwire: unexpected message %s during authentication", typed))
		}
	}
}

// handleAuthMessage consumes one AuthenticationRequest frame already read
// into s.reader.Msg and reports whether authentication is complete.
func (s *Session) handleAuthMessage() (bool, error) {
	sub, err := s.reader.GetInt32()
	if err != nil {
		return false, s.fail(KindProtocol, err)
	}

	switch authType(sub) {
	case authOK:
		return true, nil
	case authCleartextPassword:
		if err := s.sendPassword(s.endpoint.Password); err != nil {
			return false, s.fail(KindConnectionLost, err)
		}
		return false, nil
	case authMD5Password:
		// Open question (see DESIGN.md): MD5 challenge/response is not
		// implemented. SCRAM-SHA-256 is the only mechanism this client
		// speaks; a server still requiring MD5 is rejected outright rather
		// than silently downgraded.
		return false, s.fail(KindAuth, fmt.Errorf("pgwire: server requested MD5 authentication, which is unsupported"))
	case authSASL:
		return false, s.runSASL()
	default:
		return false, s.fail(KindAuth, fmt.Errorf("pgwire: unsupported authentication type %d", sub))
	}
}

// runSASL drives the SCRAM-SHA-256 exchange described in §4.4, reading the
// server's list of supported mechanisms off the current AuthenticationSASL
// frame and then alternating writes with the two continuation frames the
// backend sends back.
func (s *Session) runSASL() error {
	var mechanisms []string
	for {
		name, err := s.reader.GetString()
		if err != nil || name == "" {
			break
		}
		mechanisms = append(mechanisms, name)
	}

	if !scram.SupportsMechanisms(mechanisms) {
		return s.fail(KindAuth, fmt.Errorf("pgwire: %w", scram.ErrUnsupportedMechanism))
	}

	client := scram.NewClient(s.endpoint.Username, s.endpoint.Password)

	initial, err := client.InitialResponse()
	if err != nil {
		return s.fail(KindAuth, err)
	}
	if err := s.sendSASLInitial(scram.Mechanism, initial); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	typed, _, err := s.reader.ReadTypedMsg()
	if err != nil {
		return s.fail(KindConnectionLost, err)
	}
	if typed == types.ServerErrorResponse {
		return s.fail(KindAuth, s.readError())
	}
	if typed != types.ServerAuth {
		return s.fail(KindProtocol, fmt.Errorf("pgwire: expected AuthenticationSASLContinue, got %s", typed))
	}
	sub, err := s.reader.GetInt32()
	if err != nil || authType(sub) != authSASLContinue {
		return s.fail(KindProtocol, fmt.Errorf("pgwire: expected AuthenticationSASLContinue"))
	}

	serverFirst, err := s.reader.GetBytes(s.reader.Remaining())
	if err != nil {
		return s.fail(KindAuth, err)
	}

	final, err := client.ContinueResponse(string(serverFirst))
	if err != nil {
		return s.fail(KindAuth, err)
	}
	if err := s.sendSASLResponse(final); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	typed, _, err = s.reader.ReadTypedMsg()
	if err != nil {
		return s.fail(KindConnectionLost, err)
	}
	if typed == types.ServerErrorResponse {
		return s.fail(KindAuth, s.readError())
	}
	if typed != types.ServerAuth {
		return s.fail(KindProtocol, fmt.Errorf("pgwire: expected AuthenticationSASLFinal, got %s", typed))
	}
	sub, err = s.reader.GetInt32()
	if err != nil || authType(sub) != authSASLFinal {
		return s.fail(KindProtocol, fmt.Errorf("pgwire: expected AuthenticationSASLFinal"))
	}

	serverFinal, err := s.reader.GetBytes(s.reader.Remaining())
	if err != nil {
		return s.fail(KindAuth, err)
	}

	if err := client.Finish(string(serverFinal)); err != nil {
		return s.fail(KindAuth, err)
	}

	// Consume the trailing AuthenticationOK frame.
	typed, _, err = s.reader.ReadTypedMsg()
	if err != nil {
		return s.fail(KindConnectionLost, err)
	}
	if typed == types.ServerErrorResponse {
		return s.fail(KindAuth, s.readError())
	}
	if typed != types.ServerAuth {
		return s.fail(KindProtocol, fmt.Errorf("pgwire: expected AuthenticationOK, got %s", typed))
	}
	sub, err = s.reader.GetInt32()
	if err != nil || authType(sub) != authOK {
		return s.fail(KindAuth, fmt.Errorf("pgwire: SCRAM handshake did not conclude with AuthenticationOK"))
	}

	return nil
}

func (s *Session) sendPassword(password string) error {
	s.writer.Start(types.ClientPassword)
	s.writer.AddString(password)
	s.writer.AddNullTerminate()
	return s.writer.End()
}

func (s *Session) sendSASLInitial(mechanism, initial string) error {
	s.writer.Start(types.ClientPassword)
	s.writer.AddString(mechanism)
	s.writer.AddNullTerminate()
	s.writer.AddInt32(int32(len(initial)))
	s.writer.AddString(initial)
	return s.writer.End()
}

func (s *Session) sendSASLResponse(response string) error {
	s.writer.Start(types.ClientPassword)
	s.writer.AddString(response)
	return s.writer.End()
}

// awaitReady collects ParameterStatus and BackendKeyData messages until the
// first ReadyForQuery, which marks the session Ready.
func (s *Session) awaitReady(ctx context.Context) error {
	for {
		typed, _, err := s.reader.ReadTypedMsg()
		if err != nil {
			return s.fail(KindConnectionLost, err)
		}

		switch typed {
		case types.ServerParameterStatus:
			key, err := s.reader.GetString()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			value, err := s.reader.GetString()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			s.mu.Lock()
			s.parameters[key] = value
			s.mu.Unlock()
		case types.ServerBackendKeyData:
			pid, err := s.reader.GetInt32()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			secret, err := s.reader.GetInt32()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			s.backendPID = pid
			s.backendSecret = secret
		case types.ServerNoticeResponse:
			s.dispatchNotice()
		case types.ServerErrorResponse:
			return s.fail(KindProtocol, s.readError())
		case types.ServerReady:
			status, err := s.reader.GetByte()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			s.tx.status = types.TransactionStatus(status)
			return nil
		default:
			return s.fail(KindProtocol, fmt.Errorf("pgwire: unexpected message %s before ReadyForQuery", typed))
		}
	}
}
