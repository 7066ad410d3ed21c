package config

import (
	"time"

	"github.com/quic-go/quic-go"
)

// Quic holds the QUIC transport knobs the bridges rely on.
type Quic struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	KeepAlive       time.Duration `yaml:"keep_alive_interval"`
	InitialRTT      time.Duration `yaml:"initial_rtt"`
	DatagramSupport bool          `yaml:"datagram_support"`
	RelayMode       bool          `yaml:"relay_mode"`
	// SegmentationOffload enables UDP GSO on the socket. It defaults to
	// false (GSO off) per the portability rationale in spec.md §4.1; a
	// config can opt back in where the platform's GSO support is known good.
	SegmentationOffload bool `yaml:"segmentation_offload"`
}

// Default QUIC knob values used across every role.
const (
	DefaultIdleTimeout = 30 * time.Second
	DefaultKeepAlive   = 10 * time.Second
	DefaultInitialRTT  = 10 * time.Millisecond
)

// ApplyDefaults fills zero-valued fields with sane defaults.
func (q *Quic) ApplyDefaults() {
	if q.IdleTimeout == 0 {
		q.IdleTimeout = DefaultIdleTimeout
	}
	if q.KeepAlive == 0 {
		q.KeepAlive = DefaultKeepAlive
	}
	if q.InitialRTT == 0 {
		q.InitialRTT = DefaultInitialRTT
	}
}

// QuicConfig builds a *quic.Config from the knobs. quic-go v0.48.2 exposes
// neither a direct "initial RTT" setting, nor an ACK_FREQUENCY knob, nor a
// pluggable congestion controller: all three are approximated instead by
// sizing the initial flow-control windows generously
// (InitialStreamReceiveWindow / InitialConnectionReceiveWindow) so the
// connection doesn't pay quic-go's slow-start penalty for the 333ms
// WAN-default RTT assumption on what is usually a LAN or direct P2P link.
// SegmentationOffload (GSO) is the one knob quic-go does expose directly,
// as quic.Transport.DisableGSO — set by the caller constructing the
// Transport, not here.
func (q Quic) QuicConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout:           8 * time.Second,
		MaxIdleTimeout:                 q.IdleTimeout,
		KeepAlivePeriod:                q.KeepAlive,
		InitialStreamReceiveWindow:     6 << 20,
		MaxStreamReceiveWindow:         6 << 20,
		InitialConnectionReceiveWindow: 15 << 20,
		MaxConnectionReceiveWindow:     15 << 20,
		EnableDatagrams:                q.DatagramSupport,
	}
}
