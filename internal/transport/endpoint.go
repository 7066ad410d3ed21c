// Package transport presents the minimal capability set XoQ's bridges and
// MoQ engine need on top of QUIC: dial peer, accept peer, open/
// accept bidirectional and unidirectional streams, send/receive datagrams.
// It carries no protocol knowledge — that lives in internal/moq and the
// bridge packages.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/xoqerrors"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog/log"
)

// DefaultConnectTimeout is the default connect timeout.
const DefaultConnectTimeout = 8 * time.Second

// Endpoint owns one UDP socket and the QUIC transport bound to it. It can
// dial outbound connections and accept inbound ones depending on how it was
// constructed.
type Endpoint struct {
	transport *quic.Transport
	listener  *quic.Listener
	conn      net.PacketConn
}

// Listen binds addr and returns an Endpoint that accepts inbound QUIC
// connections presenting tlsConf. tlsConf.NextProtos restricts which ALPN
// tokens are accepted; connections negotiating anything else are rejected
// by the TLS handshake itself.
func Listen(addr string, tlsConf *tls.Config, qcfg config.Quic) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, xoqerrors.Config("resolve listen address", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	tr := &quic.Transport{Conn: conn, DisableGSO: !qcfg.SegmentationOffload}
	ln, err := tr.Listen(tlsConf, qcfg.QuicConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("listen quic %s: %w", addr, err)
	}

	return &Endpoint{transport: tr, listener: ln, conn: conn}, nil
}

// Dial connects to addr using tlsConf, which must set NextProtos to the
// client's ALPN preference order.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, qcfg config.Quic) (*Conn, error) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("open dial socket: %w", err)
	}
	tr := &quic.Transport{Conn: udpConn, DisableGSO: !qcfg.SegmentationOffload}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		tr.Close()
		return nil, xoqerrors.Config("resolve dial address", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	qconn, err := tr.Dial(ctx, udpAddr, tlsConf, qcfg.QuicConfig())
	if err != nil {
		tr.Close()
		return nil, xoqerrors.Transport(fmt.Errorf("dial %s: %w", addr, err))
	}
	return &Conn{Conn: qconn, transport: tr}, nil
}

// LocalAddr returns the address the endpoint's socket is bound to, letting
// callers that listened on an OS-assigned port (":0") discover it.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Accept blocks until a new inbound connection arrives.
func (e *Endpoint) Accept(ctx context.Context) (*Conn, error) {
	qconn, err := e.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("com", "transport").Str("remote", qconn.RemoteAddr().String()).
		Str("alpn", qconn.ConnectionState().TLS.NegotiatedProtocol).Msg("accepted connection")
	return &Conn{Conn: qconn}, nil
}

// Close tears down the listener and its socket. Individual connections fail
// independently and are not force-closed here; bridges decide their own
// reconnection policy.
func (e *Endpoint) Close() error {
	if e.listener != nil {
		_ = e.listener.Close()
	}
	return e.conn.Close()
}

// Conn wraps a *quic.Conn with the capability set bridges use: open/accept
// bidi and uni streams, datagrams.
type Conn struct {
	*quic.Conn
	transport *quic.Transport
}

// OpenStream opens a new bidirectional stream.
func (c *Conn) OpenStream(ctx context.Context) (*quic.Stream, error) {
	return c.Conn.OpenStreamSync(ctx)
}

// AcceptStream accepts a peer-opened bidirectional stream.
func (c *Conn) AcceptStream(ctx context.Context) (*quic.Stream, error) {
	return c.Conn.AcceptStream(ctx)
}

// OpenUniStream opens a new unidirectional stream (used for MoQ groups).
func (c *Conn) OpenUniStream(ctx context.Context) (*quic.SendStream, error) {
	return c.Conn.OpenUniStreamSync(ctx)
}

// AcceptUniStream accepts a peer-opened unidirectional stream.
func (c *Conn) AcceptUniStream(ctx context.Context) (*quic.ReceiveStream, error) {
	return c.Conn.AcceptUniStream(ctx)
}

// SendDatagram sends an unreliable, message-boundary-preserving datagram.
// Not the default carrier for reliable byte streams; only used where a
// bridge's control plane opts into datagrams over stream-based delivery.
func (c *Conn) SendDatagram(data []byte) error {
	return c.Conn.SendDatagram(data)
}

// ReceiveDatagram blocks for the next inbound datagram.
func (c *Conn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return c.Conn.ReceiveDatagram(ctx)
}

// Close closes the connection and its dial-side transport, if any.
func (c *Conn) Close() error {
	err := c.Conn.CloseWithError(0, "closing")
	if c.transport != nil {
		_ = c.transport.Close()
	}
	return err
}
