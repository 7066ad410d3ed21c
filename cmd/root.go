// Package cmd wires every XoQ role into one cobra binary, mirroring the
// teacher's single-root/per-role-subcommand layout.
package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haixuanTao/XoQ/cmd/audio"
	"github.com/haixuanTao/XoQ/cmd/bus"
	"github.com/haixuanTao/XoQ/cmd/camera"
	"github.com/haixuanTao/XoQ/cmd/depth"
	"github.com/haixuanTao/XoQ/cmd/keygen"
	"github.com/haixuanTao/XoQ/cmd/relay"
	"github.com/haixuanTao/XoQ/cmd/serial"
	"github.com/haixuanTao/XoQ/internal/config"
)

var (
	Version = "dev"

	showVersion bool
	debug       bool

	rootCmd = &cobra.Command{
		Use:   "xoq",
		Short: "Remote-hardware-access fabric: serial, CAN, camera, and audio devices over QUIC",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			SetLogLevel()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if showVersion {
				fmt.Println(Version)
				return
			}
			cmd.Help()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable trace logging")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version information")
	rootCmd.AddCommand(keygen.Cmd)
	rootCmd.AddCommand(relay.Cmd)
	rootCmd.AddCommand(serial.ServerCmd)
	rootCmd.AddCommand(serial.ClientCmd)
	rootCmd.AddCommand(serial.ListCmd)
	rootCmd.AddCommand(bus.ServerCmd)
	rootCmd.AddCommand(bus.ClientCmd)
	rootCmd.AddCommand(camera.ServerCmd)
	rootCmd.AddCommand(camera.ClientCmd)
	rootCmd.AddCommand(depth.ServerCmd)
	rootCmd.AddCommand(audio.ServerCmd)
	rootCmd.AddCommand(audio.ClientCmd)
	rootCmd.AddCommand(audio.ListCmd)
}

// SetLogLevel sets the global log level from XOQ_LOG, overridden to trace
// by the --debug flag.
func SetLogLevel() {
	config.ApplyLogLevel(debug)
}
