// Package scram implements the client side of SCRAM-SHA-256, the SASL
// mechanism Postgres uses for password authentication since v10. The
// exchange is driven externally by the session's authentication dispatch:
// the session feeds each AuthenticationRequest sub-message in and reads the
// next outbound payload back from the returned Client.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism is the SASL mechanism name this package speaks.
const Mechanism = "SCRAM-SHA-256"

var (
	// ErrUnsupportedMechanism is returned when the server's advertised
	// mechanism list does not include SCRAM-SHA-256.
	ErrUnsupportedMechanism = errors.New("scram: server does not support SCRAM-SHA-256")
	// ErrServerNonceMismatch is returned when the server-first nonce does not
	// start with the client nonce that was sent.
	ErrServerNonceMismatch = errors.New("scram: server nonce does not extend client nonce")
	// ErrServerRejected is returned when the server-final message carries an
	// e= error field instead of a verifier.
	ErrServerRejected = errors.New("scram: server rejected the exchange")
	// ErrServerSignatureMismatch is returned when the server's verifier does
	// not match the signature the client computed; the server could not
	// prove it holds the stored key.
	ErrServerSignatureMismatch = errors.New("scram: server signature verification failed")
	// ErrMalformedMessage is returned when a server-first or server-final
	// message cannot be parsed.
	ErrMalformedMessage = errors.New("scram: malformed server message")
)

// gs2Header is fixed: "n,," — no channel binding, no authzid. See the
// Non-goal note on SCRAM-SHA-256-PLUS in the design notes: channel binding
// is never negotiated, so this header never varies.
const gs2Header = "n,,"

// Client drives one SCRAM-SHA-256 exchange for a single username/password
// pair. It is single-use: construct a new Client per authentication attempt.
type Client struct {
	username string
	password string

	clientNonce     string
	clientFirstBare string

	saltedPassword []byte
	authMessage    string
}

// NewClient constructs a SCRAM client for the given username and password.
func NewClient(username, password string) *Client {
	return &Client{username: username, password: password}
}

// SupportsMechanisms reports whether SCRAM-SHA-256 is among the mechanisms
// a server advertised in an AuthenticationSASL message, failing fast if
// absent rather than falling back to a weaker mechanism.
func SupportsMechanisms(mechanisms []string) bool {
	for _, m := range mechanisms {
		if m == Mechanism {
			return true
		}
	}
	return false
}

// InitialResponse produces the SASLInitialResponse payload: the GS2 header
// followed by the client-first-message-bare. A fresh 24-byte client nonce is
// generated and retained for the remainder of the exchange.
func (c *Client) InitialResponse() (string, error) {
	nonce := make([]byte, 24)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("scram: generating client nonce: %w", err)
	}

	c.clientNonce = base64.StdEncoding.EncodeToString(nonce)
	c.clientFirstBare = "n=" + saslname(c.username) + ",r=" + c.clientNonce

	return gs2Header + c.clientFirstBare, nil
}

// ContinueResponse consumes the server-first message (carried inside a
// SASLContinue AuthenticationRequest) and produces the client-final-message
// to send back as the SASLResponse payload.
func (c *Client) ContinueResponse(serverFirst string) (string, error) {
	fields, err := parseFields(serverFirst)
	if err != nil {
		return "", err
	}

	snonce, ok := fields["r"]
	if !ok {
		return "", ErrMalformedMessage
	}
	if !strings.HasPrefix(snonce, c.clientNonce) {
		return "", ErrServerNonceMismatch
	}

	saltB64, ok := fields["s"]
	if !ok {
		return "", ErrMalformedMessage
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("%w: bad salt: %w", ErrMalformedMessage, err)
	}

	iterStr, ok := fields["i"]
	if !ok {
		return "", ErrMalformedMessage
	}
	iter, err := strconv.Atoi(iterStr)
	if err != nil || iter <= 0 {
		return "", fmt.Errorf("%w: bad iteration count", ErrMalformedMessage)
	}

	c.saltedPassword = hi(c.password, salt, iter)
	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	channelBinding := base64.StdEncoding.EncodeToString([]byte(gs2Header))
	clientFinalWithoutProof := "c=" + channelBinding + ",r=" + snonce

	c.authMessage = c.clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey[:], []byte(c.authMessage))
	proof := xor(clientKey, clientSignature)

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof), nil
}

// Finish verifies the server-final message (carried inside a SASLFinal
// AuthenticationRequest), confirming the server holds the same stored key.
func (c *Client) Finish(serverFinal string) error {
	fields, err := parseFields(serverFinal)
	if err != nil {
		return err
	}

	if errMsg, ok := fields["e"]; ok {
		return fmt.Errorf("%w: %s", ErrServerRejected, errMsg)
	}

	verifierB64, ok := fields["v"]
	if !ok {
		return ErrMalformedMessage
	}
	verifier, err := base64.StdEncoding.DecodeString(verifierB64)
	if err != nil {
		return fmt.Errorf("%w: bad verifier: %w", ErrMalformedMessage, err)
	}

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expected := hmacSHA256(serverKey, []byte(c.authMessage))

	if subtle.ConstantTimeCompare(expected, verifier) != 1 {
		return ErrServerSignatureMismatch
	}

	return nil
}

// saslname escapes a username per RFC 5802 §5.1: "=" becomes "=3D" and ","
// becomes "=2C".
func saslname(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

// hi implements PBKDF2-HMAC-SHA256 as specified by RFC 5802: Hi(p, s, i).
func hi(password string, salt []byte, iter int) []byte {
	return pbkdf2.Key([]byte(password), salt, iter, sha256.Size, sha256.New)
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// parseFields splits a comma-separated SCRAM message of key=value pairs. It
// does not unescape values beyond what each caller expects, matching the
// fields actually consumed (r, s, i, c, p, v, e).
func parseFields(msg string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, '=')
		if idx < 1 {
			return nil, ErrMalformedMessage
		}
		fields[part[:idx]] = part[idx+1:]
	}
	return fields, nil
}
