package pgwire

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// TCPDialer is the default Dialer: it opens a plain TCP connection and
// implements TLSUpgrader by wrapping that connection with crypto/tls on
// demand. It exists so examples and cmd/pgwire-bench have a working
// transport collaborator; the wire protocol itself has no opinion on how
// the byte stream was obtained.
type TCPDialer struct {
	TLSConfig *tls.Config
}

func (d *TCPDialer) Dial(ctx context.Context, endpoint Endpoint) (Transport, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port))
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: conn, tlsConfig: d.TLSConfig}, nil
}

type tcpConn struct {
	net.Conn
	tlsConfig *tls.Config
}

func (c *tcpConn) StartTLS(ctx context.Context) (Transport, error) {
	cfg := c.tlsConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}

	tlsConn := tls.Client(c.Conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return &tcpConn{Conn: tlsConn, tlsConfig: cfg}, nil
}
