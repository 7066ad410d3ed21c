package identity

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ServiceEndpoint describes one discoverable bridge endpoint for external
// orchestration tooling.
type ServiceEndpoint struct {
	ALPN string `json:"alpn"`
	Addr string `json:"addr"`
}

// MachineDescriptor is the optional JSON sidecar the node writes alongside
// its keys for local orchestration tooling.
type MachineDescriptor struct {
	NodeID   string            `json:"node_id"`
	Services []ServiceEndpoint `json:"services"`
}

// WriteMachineDescriptor writes the descriptor to $keyDir/machine.json.
func WriteMachineDescriptor(keyDir string, desc MachineDescriptor) error {
	if keyDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		keyDir = filepath.Join(home, ".xoq")
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal machine descriptor: %w", err)
	}
	path := filepath.Join(keyDir, "machine.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write machine descriptor %s: %w", path, err)
	}
	return nil
}
