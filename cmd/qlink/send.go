package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/qlink/pkg/config"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <port|device> <data>",
	Short: "Send data to a device and print the reply",
	Long: `Opens the connection, sends data once, prints whatever the device answers
within --wait, and closes the connection.

Text is sent with the configured end-of-line appended. With --hex the data is
parsed as hex bytes and sent as-is.

Examples:
  qlink send /dev/ttyUSB0 "*IDN?" --baud 115200
  qlink send COM3 0d0a --hex --wait 0
  qlink send /dev/ttyACM0 "status" --eol lf --wait 2s`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var (
	sendConnect connectFlags
	sendHex     bool
	sendEOL     string
	sendWait    time.Duration
)

func init() {
	sendConnect.register(sendCmd)
	sendCmd.Flags().BoolVar(&sendHex, "hex", false, "Parse data as hex (e.g. 'FF01' or 'ff 01'); --eol is not appended")
	sendCmd.Flags().StringVar(&sendEOL, "eol", "", "End of line appended to text: none, lf, cr, crlf (default from config)")
	sendCmd.Flags().DurationVarP(&sendWait, "wait", "w", time.Second, "How long to print replies before closing")
}

// parseSendData returns the bytes to send for text or hex input.
func parseSendData(input string, asHex bool, eol string) ([]byte, error) {
	if !asHex {
		return []byte(input + eol), nil
	}

	cleaned := strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(input)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data %q: %w", input, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no data to send")
	}
	return data, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	if sendEOL != "" {
		cfg.EOL = sendEOL
	}
	eol, err := config.ParseEOL(cfg.EOL)
	if err != nil {
		return err
	}
	data, err := parseSendData(args[1], sendHex, eol)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := openConnection(ctx, cfg, &sendConnect, args[0], cmd.OutOrStdout(), nil, logger)
	if err != nil {
		return err
	}

	sendErr := conn.session.Send(data)
	if sendErr == nil && sendWait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(sendWait):
		}
	}

	if err := conn.Close(); err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("failed to send %d bytes: %w", len(data), sendErr)
	}
	return nil
}
