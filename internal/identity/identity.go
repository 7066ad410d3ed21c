// Package identity owns the one documented piece of global mutable state in
// XoQ: the per-role Ed25519 node keypair. It is generated on first launch,
// read on every subsequent launch, and never exported in any wire message.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Identity is a loaded or freshly generated node keypair.
type Identity struct {
	Role       string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// NodeID returns the hex-encoded Ed25519 public key advertised to peers.
func (id *Identity) NodeID() string {
	return hex.EncodeToString(id.PublicKey)
}

// Sign signs data with the node's private key, for peer-authenticated
// handshakes over the P2P transport.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.PrivateKey, data)
}

var (
	mu    sync.Mutex
	cache = map[string]*Identity{}
)

// Load returns the identity for role, generating and persisting a new
// keypair on first use. Concurrent callers for the same role in the same
// process receive the same *Identity; concurrent callers across processes
// racing on the same key file will each regenerate independently and the
// loser's write is harmless since O_WRONLY|O_CREATE|O_TRUNC always succeeds
// last-writer-wins — callers that need cross-process coordination should run
// keygen once up front.
func Load(keyDir, role string) (*Identity, error) {
	mu.Lock()
	defer mu.Unlock()

	if id, ok := cache[role]; ok {
		return id, nil
	}

	path, err := keyPath(keyDir, role)
	if err != nil {
		return nil, fmt.Errorf("resolve key path: %w", err)
	}

	logger := log.With().Str("com", "identity").Str("role", role).Logger()

	seed, err := os.ReadFile(path)
	if err == nil {
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key file %s has invalid length %d, expected %d", path, len(seed), ed25519.SeedSize)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		id := &Identity{Role: role, PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}
		cache[role] = id
		logger.Info().Str("node_id", id.NodeID()).Str("path", path).Msg("loaded node identity")
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, priv.Seed(), 0600); err != nil {
		return nil, fmt.Errorf("write key file %s: %w", path, err)
	}

	id := &Identity{Role: role, PublicKey: pub, PrivateKey: priv}
	cache[role] = id
	logger.Info().Str("node_id", id.NodeID()).Str("path", path).Msg("generated new node identity")
	return id, nil
}

func keyPath(keyDir, role string) (string, error) {
	if keyDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		keyDir = filepath.Join(home, ".xoq")
	}
	return filepath.Join(keyDir, fmt.Sprintf(".xoq_%s_key", role)), nil
}
