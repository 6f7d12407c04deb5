package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/qlink/internal/transport"
	"github.com/srg/qlink/pkg/config"
)

// Enumeration hooks, replaced by tests.
var (
	listSerialPorts   = transport.ListSerialPorts
	discoverBluetooth = transport.DiscoverBluetooth
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and Bluetooth devices",
	Long: `Lists the serial ports of this machine and, with --bluetooth, the Bluetooth
devices seen during a short scan.

Every list has at least one entry: when nothing is found, or enumeration fails,
a placeholder such as "No ports available" is shown instead. Placeholders cannot
be opened.

Examples:
  qlink ports
  qlink ports --bluetooth --duration 10s
  qlink ports --format json`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

var (
	portsBluetooth bool
	portsDuration  time.Duration
	portsFormat    string
)

func init() {
	portsCmd.Flags().BoolVar(&portsBluetooth, "bluetooth", false, "Also scan for Bluetooth devices")
	portsCmd.Flags().DurationVarP(&portsDuration, "duration", "d", 0, "Bluetooth scan duration (default from config)")
	portsCmd.Flags().StringVarP(&portsFormat, "format", "f", "", "Output format (table, json)")
}

// portList is the JSON shape of the ports output.
type portList struct {
	Serial    []string `json:"serial"`
	Bluetooth []string `json:"bluetooth,omitempty"`
	BaudRates []int    `json:"baud_rates"`
}

func runPorts(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	format := cfg.OutputFormat
	if portsFormat != "" {
		format = portsFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	duration := cfg.ScanTimeout
	if portsDuration > 0 {
		duration = portsDuration
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	list := portList{
		Serial:    listSerialPorts(),
		BaudRates: config.BaudRates,
	}

	if portsBluetooth {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var progress *Progress
		if format == "table" {
			progress = NewCountdown(cmd.ErrOrStderr(), "Scanning for Bluetooth devices", "Scanning", duration)
			progress.Start()
		}
		list.Bluetooth = discoverBluetooth(ctx, duration, logger)
		if progress != nil {
			progress.Stop()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	return writePortTable(cmd.OutOrStdout(), list)
}

func writePortTable(out io.Writer, list portList) error {
	dim := color.New(color.Faint)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "TYPE\tPORT")
	row := func(kind, id string) {
		if transport.IsSentinel(id) {
			id = dim.Sprint(id)
		}
		fmt.Fprintf(w, "%s\t%s\n", kind, id)
	}
	for _, p := range list.Serial {
		row("serial", p)
	}
	for _, d := range list.Bluetooth {
		row("bluetooth", d)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nBaud rates: %s\n", baudChoices())
	return nil
}
