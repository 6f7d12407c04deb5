package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/qlink/internal/transport"
	"github.com/stretchr/testify/suite"
)

// fakeTransport is an in-memory transport. Queued chunks are returned by Receive in
// order; everything sent is recorded.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	sendErr    error

	connectedTo []string
	params      []transport.Params
	sent        bytes.Buffer
	rx          [][]byte
}

func (f *fakeTransport) Kind() transport.Kind { return transport.KindSerial }

func (f *fakeTransport) Connect(_ context.Context, id string, params transport.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedTo = append(f.connectedTo, id)
	f.params = append(f.params, params)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.connected = false
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent.Write(data)
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		return nil, nil
	}
	chunk := f.rx[0]
	f.rx = f.rx[1:]
	return chunk, nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) queue(chunks ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.rx = append(f.rx, []byte(c))
	}
}

func (f *fakeTransport) Sent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent.String()
}

func (f *fakeTransport) ConnectedTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connectedTo...)
}

// CommandTestSuite runs commands through rootCmd against a fake transport and fake
// enumeration.
type CommandTestSuite struct {
	suite.Suite

	Transport *fakeTransport

	originalNewTransport      func(transport.Kind, *logrus.Logger) (transport.Transport, error)
	originalListSerialPorts   func() []string
	originalDiscoverBluetooth func(context.Context, time.Duration, *logrus.Logger) []string
	originalNoColor           bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalNewTransport = newTransport
	s.originalListSerialPorts = listSerialPorts
	s.originalDiscoverBluetooth = discoverBluetooth
	s.originalNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	newTransport = s.originalNewTransport
	listSerialPorts = s.originalListSerialPorts
	discoverBluetooth = s.originalDiscoverBluetooth
	color.NoColor = s.originalNoColor
}

func (s *CommandTestSuite) SetupTest() {
	s.Transport = &fakeTransport{}
	newTransport = func(transport.Kind, *logrus.Logger) (transport.Transport, error) {
		return s.Transport, nil
	}
	listSerialPorts = func() []string { return []string{transport.NoPortsAvailable} }
	discoverBluetooth = func(context.Context, time.Duration, *logrus.Logger) []string {
		return []string{transport.NoBluetoothDevices}
	}
}

// ExecuteCommand runs rootCmd with default flags plus args, feeding stdin. Returns the
// combined output and error.
func (s *CommandTestSuite) ExecuteCommand(stdin string, args ...string) (string, error) {
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags puts every flag of cmd and its subcommands back to its default value.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
