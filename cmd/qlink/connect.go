package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/qlink/internal/groutine"
	"github.com/srg/qlink/internal/logsink"
	"github.com/srg/qlink/internal/session"
	"github.com/srg/qlink/internal/transport"
	"github.com/srg/qlink/pkg/config"
)

// newTransport is replaced by tests.
var newTransport = transport.New

const eventBufferSize = 1024

// connectFlags are shared by every command that opens a connection.
type connectFlags struct {
	baud      string
	transport string
	framing   string
}

func (f *connectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.baud, "baud", "b", "", fmt.Sprintf("Baud rate, one of %s (default from config)", baudChoices()))
	cmd.Flags().StringVarP(&f.transport, "transport", "t", "", "Transport: serial, rfcomm or ble (default from config)")
	cmd.Flags().StringVar(&f.framing, "framing", "", "Receive framing: chunks or lines (default from config)")
}

func baudChoices() string {
	rates := make([]string, len(config.BaudRates))
	for i, r := range config.BaudRates {
		rates[i] = strconv.Itoa(r)
	}
	return strings.Join(rates, ", ")
}

// parseBaud parses a baud rate choice. Non-standard positive rates are accepted with a
// warning since some adapters support them.
func parseBaud(s string, logger *logrus.Logger) (int, error) {
	rate, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("%w: %q (choose one of %s)", ErrInvalidBaudRate, s, baudChoices())
	}
	if !config.IsStandardBaudRate(rate) {
		logger.WithField("baud", rate).Warn("Non-standard baud rate")
	}
	return rate, nil
}

// connection is an opened session plus the live event printer.
type connection struct {
	session *session.Manager
	sink    *logsink.Sink
	kind    transport.Kind

	events  *logsink.RingChannel[logsink.Event]
	printed <-chan struct{}
}

// sinkHook runs on the new event sink before the session opens, so extra subscribers
// see every event.
type sinkHook func(*logsink.Sink)

// openConnection resolves the connect flags against cfg and opens a session to id.
// Events are printed to out from before the open attempt, so a failed open still
// shows its log lines.
func openConnection(ctx context.Context, cfg *config.Config, flags *connectFlags, id string, out io.Writer, onSink sinkHook, logger *logrus.Logger) (*connection, error) {
	if flags.transport != "" {
		cfg.Transport = flags.transport
	}
	if flags.framing != "" {
		cfg.Session.Framing = flags.framing
	}
	kind, err := cfg.TransportKind()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, err
	}

	baud := cfg.BaudRate
	if flags.baud != "" {
		if baud, err = parseBaud(flags.baud, logger); err != nil {
			return nil, err
		}
	}

	tr, err := newTransport(kind, logger)
	if err != nil {
		return nil, err
	}

	sink, err := logsink.New(logsink.DefaultCapacity)
	if err != nil {
		return nil, err
	}

	c := &connection{
		session: session.New(tr, sink, logger, opts),
		sink:    sink,
		kind:    kind,
		events:  sink.Subscribe(eventBufferSize),
	}
	c.printed = printEvents(out, c.events)
	if onSink != nil {
		onSink(sink)
	}

	logger.WithFields(logrus.Fields{
		"id":        id,
		"transport": kind,
		"baud":      baud,
	}).Debug("Opening connection")

	if err := c.session.Open(ctx, id, cfg.TransportParams(baud)); err != nil {
		c.stopPrinting()
		return nil, err
	}
	return c, nil
}

// Close closes the session and flushes the remaining events to the printer.
func (c *connection) Close() error {
	err := c.session.Close()
	c.stopPrinting()
	return err
}

func (c *connection) stopPrinting() {
	c.sink.Unsubscribe(c.events)
	<-c.printed
}

// eventColors maps event kinds to their operator colours.
var eventColors = map[logsink.Kind]*color.Color{
	logsink.KindStatus:   color.New(color.FgYellow),
	logsink.KindReceived: color.New(color.FgGreen),
	logsink.KindSent:     color.New(color.FgCyan),
	logsink.KindError:    color.New(color.FgRed, color.Bold),
}

func formatEvent(ev logsink.Event) string {
	text := strings.TrimRight(ev.Text, "\r\n")
	line := fmt.Sprintf("%s [%s] %s", ev.Timestamp.Format("15:04:05.000"), ev.Kind, text)
	if c, ok := eventColors[ev.Kind]; ok {
		return c.Sprint(line)
	}
	return line
}

// printEvents writes every event from sub to out until sub is closed.
func printEvents(out io.Writer, sub *logsink.RingChannel[logsink.Event]) <-chan struct{} {
	return groutine.Go(context.Background(), "cli-event-printer", func(context.Context) {
		for ev := range sub.C() {
			fmt.Fprintln(out, formatEvent(ev))
		}
	})
}
