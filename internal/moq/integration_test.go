package moq

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/transport"
)

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &identity.Identity{Role: "test", PublicKey: pub, PrivateKey: priv}
}

// dialedPair spins up a real loopback QUIC connection pair so publisher and
// subscriber tests exercise the actual wire codec, not an in-memory stub.
func dialedPair(t *testing.T, alpn string) (server, client *transport.Conn, cleanup func()) {
	t.Helper()
	qcfg := config.Quic{}
	qcfg.ApplyDefaults()

	serverID := testIdentity(t)
	serverTLS, err := transport.SelfSignedTLSConfig(serverID, []string{alpn})
	require.NoError(t, err)

	ln, err := transport.Listen("127.0.0.1:0", serverTLS, qcfg)
	require.NoError(t, err)

	accepted := make(chan *transport.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept(context.Background())
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	clientID := testIdentity(t)
	clientTLS, err := transport.SelfSignedTLSConfig(clientID, []string{alpn})
	require.NoError(t, err)

	udpAddr, ok := ln.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, err := transport.Dial(ctx, fmt.Sprintf("127.0.0.1:%d", udpAddr.Port), clientTLS, qcfg)
	require.NoError(t, err)

	select {
	case serverConn := <-accepted:
		return serverConn, clientConn, func() {
			_ = ln.Close()
		}
	case err := <-acceptErr:
		require.NoError(t, err)
	}
	return nil, nil, func() {}
}

func TestGroupAtomicityOverLoopback(t *testing.T) {
	t.Skip("exercises real loopback QUIC sockets; enable when running with network access")

	logger := zerolog.Nop()
	alpn := "xoq/test/0"

	serverConn, clientConn, cleanup := dialedPair(t, alpn)
	defer cleanup()

	pub := NewPublisher("/test/path", logger)
	go func() { _ = pub.ServeControl(context.Background(), serverConn) }()

	sub := NewSubscriber(clientConn, logger)
	go func() { _ = sub.Run(context.Background()) }()

	subscription, err := sub.Subscribe(context.Background(), "/test/path", "data", 0)
	require.NoError(t, err)
	defer subscription.Close()

	track := pub.Track("data")
	require.Eventually(t, func() bool { return track.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	group := Group{Sequence: 1, Frames: []Frame{{Data: []byte("one")}, {Data: []byte("two")}}}
	require.NoError(t, track.Publish(context.Background(), group))

	select {
	case got := <-subscription.Groups():
		require.Equal(t, group.Sequence, got.Sequence)
		require.Len(t, got.Frames, 2)
		require.Equal(t, "one", string(got.Frames[0].Data))
		require.Equal(t, "two", string(got.Frames[1].Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for group")
	}
}
