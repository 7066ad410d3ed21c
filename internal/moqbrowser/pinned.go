package moqbrowser

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haixuanTao/XoQ/internal/transport"
)

// DialWebSocketCarrierPinned connects to a relay's self-signed WebSocket
// endpoint, verifying the peer certificate against pinnedSHA256 instead of a
// certificate authority — the same trust model the QUIC-native carrier uses,
// carried over to the browser-compatibility path.
func DialWebSocketCarrierPinned(ctx context.Context, url string, pinnedSHA256 [32]byte, headers http.Header) (*WebSocketCarrier, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify:    true,
			VerifyPeerCertificate: transport.PinnedCertVerifier(pinnedSHA256),
		},
	}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("dial pinned websocket carrier: %w", err)
	}
	return NewWebSocketCarrierFromConn(conn), nil
}
