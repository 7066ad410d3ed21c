package moqbrowser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWebSocketCarrierRoundTrip(t *testing.T) {
	serverCarrier := make(chan *WebSocketCarrier, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := UpgradeWebSocketCarrier(w, r)
		require.NoError(t, err)
		serverCarrier <- c
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientCarrier, err := DialWebSocketCarrier(ctx, wsURL, nil)
	require.NoError(t, err)
	defer clientCarrier.Close()

	server := <-serverCarrier
	defer server.Close()

	clientStream, err := clientCarrier.OpenStream(ctx)
	require.NoError(t, err)
	serverStream, err := server.OpenStream(ctx)
	require.NoError(t, err)

	_, err = clientStream.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := serverStream.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}
