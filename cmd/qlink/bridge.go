//go:build !windows

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/qlink/internal/ptybridge"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge <port|device>",
	Short: "Expose a connection as a pseudo-terminal",
	Long: `Opens a serial port or Bluetooth device and creates a pseudo-terminal
(e.g. /dev/pts/3) bridged to it, so tools that expect a serial port can talk to
the device. Bytes written to the terminal are sent to the device and received
data is written to the terminal.

Traffic is logged like in the monitor command. The bridge runs until Ctrl+C.

Examples:
  qlink bridge /dev/ttyUSB0 --baud 115200
  qlink bridge "Qliner (00:11:22:33:44:55)" --transport rfcomm --symlink /tmp/qliner`,
	Args: cobra.ExactArgs(1),
	RunE: runBridge,
}

var (
	bridgeConnect connectFlags
	bridgeSymlink string
	bridgeQuiet   bool
)

func init() {
	bridgeConnect.register(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeSymlink, "symlink", "", "Create a symlink to the terminal (e.g. /tmp/qliner)")
	bridgeCmd.Flags().BoolVarP(&bridgeQuiet, "quiet", "q", false, "Do not print traffic")

	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if bridgeQuiet {
		out = io.Discard
	}

	conn, err := openConnection(ctx, cfg, &bridgeConnect, args[0], out, nil, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	b, err := ptybridge.New(conn.session, ptybridge.Options{
		BufferSize: cfg.Connection.BufferSize,
		Symlink:    bridgeSymlink,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("Bridge ready:"), b.TTYName())
	if link := b.Symlink(); link != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Symlink: %s -> %s\n", link, b.TTYName())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("Bridge shutting down...")

	stats := b.Stats()
	if err := b.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close bridge")
	}
	logger.WithFields(logrus.Fields{
		"bytes_in":    stats.Terminal.BytesIn,
		"bytes_out":   stats.Terminal.BytesOut,
		"dropped_out": stats.Terminal.DroppedOut,
		"send_errors": stats.SendErrors,
	}).Debug("Bridge closed")
	return nil
}
