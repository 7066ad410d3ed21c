// Package keygen implements "xoq keygen", materializing a role's Ed25519
// node identity on disk ahead of time, for operators who want key
// provisioning decoupled from first server launch.
package keygen

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
)

var (
	role   string
	keyDir string

	Cmd = &cobra.Command{
		Use:   "keygen",
		Short: "Generate (or print) a role's node identity keypair",
		RunE:  run,
	}
)

func init() {
	Cmd.Flags().StringVar(&role, "role", "node", "role name the keypair is scoped to")
	Cmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory (default: XOQ_KEY_DIR or ~/.xoq)")
}

func run(cmd *cobra.Command, args []string) error {
	id, err := identity.Load(config.KeyDir(keyDir), role)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	log.Info().Str("role", role).Str("node_id", id.NodeID()).Msg("node identity ready")
	fmt.Println(id.NodeID())
	return nil
}
