package moqbrowser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetectChromeWaitsBeforeWebTransport(t *testing.T) {
	useWT, delay := Detect("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	require.True(t, useWT)
	require.Equal(t, ChromePreWebTransportDelay, delay)
}

func TestDetectFirefoxNoDelay(t *testing.T) {
	useWT, delay := Detect("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	require.True(t, useWT)
	require.Equal(t, time.Duration(0), delay)
}

func TestDetectSafariFallsBackToWebSocket(t *testing.T) {
	useWT, delay := Detect("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15")
	require.False(t, useWT)
	require.Zero(t, delay)
}
