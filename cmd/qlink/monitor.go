package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/qlink/internal/chart"
	"github.com/srg/qlink/internal/decode"
	"github.com/srg/qlink/internal/groutine"
	"github.com/srg/qlink/internal/logsink"
	"github.com/srg/qlink/pkg/config"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port|device>",
	Short: "Open a connection and log traffic in both directions",
	Long: `Opens a serial port or Bluetooth device and prints every received chunk,
sent line and status message as it happens.

Lines typed on stdin are sent to the device with the configured end-of-line.
The connection is closed on end of input, on Ctrl+C, or after --duration.

With --plot, received data is framed into lines and each line is decoded
(comma or whitespace separated numbers, or a Lua decode(line) function given
with --script). The chart is rendered to a PNG when the monitor stops.

Examples:
  qlink monitor /dev/ttyUSB0 --baud 115200
  qlink monitor "Qliner (00:11:22:33:44:55)" --transport rfcomm
  qlink monitor COM3 --baud 9600 --lines --plot live.png --no-input`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorConnect  connectFlags
	monitorLines    bool
	monitorEOL      string
	monitorNoInput  bool
	monitorDuration time.Duration
	monitorPlot     string
	monitorScript   string
)

func init() {
	monitorConnect.register(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorLines, "lines", false, "Log one event per received line (same as --framing lines)")
	monitorCmd.Flags().StringVar(&monitorEOL, "eol", "", "End of line appended to sent lines: none, lf, cr, crlf (default from config)")
	monitorCmd.Flags().BoolVar(&monitorNoInput, "no-input", false, "Do not read stdin; run until Ctrl+C or --duration")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Close the connection after this long (0 for no limit)")
	monitorCmd.Flags().StringVar(&monitorPlot, "plot", "", "Decode received lines and write a PNG chart to this file on exit")
	monitorCmd.Flags().StringVar(&monitorScript, "script", "", "Lua file defining decode(line) for --plot")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	flags := monitorConnect
	// decoders need whole lines
	if monitorLines || monitorPlot != "" {
		flags.framing = "lines"
	}
	if monitorEOL != "" {
		cfg.EOL = monitorEOL
	}
	eol, err := config.ParseEOL(cfg.EOL)
	if err != nil {
		return err
	}
	if monitorScript != "" && monitorPlot == "" {
		return fmt.Errorf("--script requires --plot")
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		model      *chart.Model
		feeder     *decode.Feeder
		onSink     sinkHook
		plotEvents *logsink.RingChannel[logsink.Event]
	)
	if monitorPlot != "" {
		decoder, closeDecoder, err := newDecoder(monitorScript, chart.KindLine, cmd.OutOrStdout(), logger)
		if err != nil {
			return err
		}
		defer closeDecoder()

		settings := chart.DefaultSettings()
		settings.SeriesCapacity = cfg.Plot.Window
		model = chart.NewModel(settings)
		feeder = decode.NewFeeder(model, decoder, logger)
		onSink = func(sink *logsink.Sink) {
			plotEvents = sink.Subscribe(eventBufferSize)
		}
	}

	conn, err := openConnection(ctx, cfg, &flags, args[0], cmd.OutOrStdout(), onSink, logger)
	if err != nil {
		return err
	}

	var fed <-chan struct{}
	if feeder != nil {
		// runs until the subscription closes so lines flushed on close are still plotted
		fed = groutine.Go(context.Background(), "cli-plot-feeder", func(ctx context.Context) {
			feeder.Run(ctx, plotEvents.C())
		})
	}

	var inputDone <-chan struct{}
	if !monitorNoInput {
		inputDone = forwardInput(ctx, cmd, conn, eol, logger)
	}

	var timeout <-chan time.Time
	if monitorDuration > 0 {
		timer := time.NewTimer(monitorDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		logger.Info("Received interrupt signal, closing connection...")
	case <-inputDone:
		logger.Debug("End of input")
	case <-timeout:
		logger.Debug("Monitor duration elapsed")
	}

	closeErr := conn.Close()
	if fed != nil {
		conn.sink.Unsubscribe(plotEvents)
		<-fed
	}
	if closeErr != nil {
		return closeErr
	}

	if model != nil {
		stats := feeder.Stats()
		bounds, err := writeChart(model, cfg.Plot.Width, cfg.Plot.Height, monitorPlot, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d samples from %d lines, %s\n",
			color.GreenString("Chart written to"), monitorPlot, stats.Samples, stats.Lines, bounds)
	}
	return nil
}

// forwardInput sends each stdin line to the device. The returned channel is closed at
// end of input.
func forwardInput(ctx context.Context, cmd *cobra.Command, conn *connection, eol string, logger *logrus.Logger) <-chan struct{} {
	in := cmd.InOrStdin()
	return groutine.Go(ctx, "cli-stdin", func(ctx context.Context) {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			// failures are already in the event log
			if err := conn.session.SendString(scanner.Text(), eol); err != nil {
				logger.WithError(err).Debug("Send failed")
			}
		}
		if err := scanner.Err(); err != nil {
			logger.WithError(err).Warn("Failed to read input")
		}
	})
}
