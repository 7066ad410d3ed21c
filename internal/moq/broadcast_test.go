package moq

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRegistryAnnounceWithdraw(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	ch, cancel := r.Watch()
	defer cancel()

	r.Announce("/camera/node-a")
	r.Announce("/camera/node-b")
	r.Announce("/can/node-a/can0")

	require.ElementsMatch(t, []string{"/camera/node-a", "/camera/node-b"}, r.List("/camera/"))
	require.ElementsMatch(t, []string{"/camera/node-a", "/camera/node-b", "/can/node-a/can0"}, r.List(""))

	select {
	case e := <-ch:
		require.True(t, e.Active)
	case <-time.After(time.Second):
		t.Fatal("expected announce event")
	}

	r.Withdraw("/camera/node-a")
	require.ElementsMatch(t, []string{"/camera/node-b"}, r.List("/camera/"))
}

func TestRegistryWatchCancel(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	ch, cancel := r.Watch()
	cancel()

	_, ok := <-ch
	require.False(t, ok)
}
