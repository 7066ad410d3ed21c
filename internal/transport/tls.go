package transport

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/haixuanTao/XoQ/internal/identity"
)

// SelfSignedTLSConfig builds a TLS config backed by a self-signed certificate
// derived from the node's Ed25519 identity. XoQ's P2P overlay has no
// certificate authority: the NodeId itself is the trust anchor, verified out
// of band (hole-punch signaling, or a pinned certificate hash for relays).
// alpns sets the ALPN preference/accept list.
func SelfSignedTLSConfig(id *identity.Identity, alpns []string) (*tls.Config, error) {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: id.NodeID()},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, id.PublicKey, id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create self-signed certificate: %w", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  id.PrivateKey,
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         alpns,
		InsecureSkipVerify: true, // trust is established by NodeId, not the CA chain
	}, nil
}

// PinnedCertVerifier returns a tls.Config.VerifyPeerCertificate callback that
// accepts only a peer certificate whose SHA-256 fingerprint matches
// pinnedSHA256
func PinnedCertVerifier(pinnedSHA256 [32]byte) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no peer certificate presented")
		}
		if sha256.Sum256(rawCerts[0]) != pinnedSHA256 {
			return fmt.Errorf("peer certificate fingerprint mismatch")
		}
		return nil
	}
}
