// Package moqbrowser carries MoQ control and data traffic to browser-class
// peers that cannot speak raw QUIC+custom-ALPN. Detect tells a browser
// client whether to try WebTransport or the WebSocket fallback; the only
// Carrier implemented here is the WebSocket tunnel, which frames the same
// byte stream the QUIC-native side would read from a stream.
package moqbrowser

import (
	"context"
	"io"
	"strings"
	"time"
)

// Carrier is the minimal duplex-stream-factory abstraction the MoQ engine
// needs from whatever underlying browser transport is in play.
type Carrier interface {
	// OpenStream returns a bidirectional logical stream; a carrier without
	// stream multiplexing (WebSocketCarrier) returns the same stream each time.
	OpenStream(ctx context.Context) (io.ReadWriteCloser, error)
	// Close tears down the carrier and every stream it opened.
	Close() error
}

// ChromePreWebTransportDelay is how long Detect tells callers to wait before
// attempting a WebTransport connection from a freshly loaded Chrome tab:
// Chrome's QUIC session cache is cold on first navigation and an immediate
// WebTransport attempt races the OS DNS/route cache warmup, failing more
// often than a short deliberate wait does.
const ChromePreWebTransportDelay = 2 * time.Second

// Detect inspects a browser's User-Agent header and reports which carrier it
// should use and how long to wait before attempting WebTransport.
func Detect(userAgent string) (useWebTransport bool, preDelay time.Duration) {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "chromium") || strings.Contains(ua, "edg/"):
		return true, ChromePreWebTransportDelay
	case strings.Contains(ua, "firefox"):
		return true, 0
	default:
		// Safari and anything unrecognized: WebTransport support is spotty,
		// go straight to the WebSocket fallback.
		return false, 0
	}
}
