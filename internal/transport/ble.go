package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/groutine"
)

// Nordic UART Service: the de-facto BLE stand-in for a serial link.
var (
	UARTServiceUUID = ble.MustParse("6E400001-B5A3-F393-E0A9-E50E24DCCA9E")
	// UARTTxCharUUID notifies device -> host.
	UARTTxCharUUID = ble.MustParse("6E400003-B5A3-F393-E0A9-E50E24DCCA9E")
	// UARTRxCharUUID is written host -> device.
	UARTRxCharUUID = ble.MustParse("6E400002-B5A3-F393-E0A9-E50E24DCCA9E")
)

const (
	bleChunkSize  = 20
	bleChunkDelay = 10 * time.Millisecond
)

// DeviceFactory creates the platform BLE device (can be overridden in tests).
var DeviceFactory = newPlatformDevice

var (
	sharedDeviceMu sync.Mutex
	sharedDevice   ble.Device
)

// defaultDevice returns the process-wide BLE device, creating it on first use.
// HCI sockets and CoreBluetooth managers are not meant to be opened twice.
func defaultDevice() (ble.Device, error) {
	sharedDeviceMu.Lock()
	defer sharedDeviceMu.Unlock()

	if sharedDevice != nil {
		return sharedDevice, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)
	sharedDevice = dev
	return dev, nil
}

// BLE is the UART-over-BLE backend.
type BLE struct {
	logger *logrus.Logger

	connMutex sync.RWMutex
	client    ble.Client
	rxChar    *ble.Characteristic
	address   string
	rx        *rxPump
	monitor   context.CancelFunc

	writeMutex sync.Mutex
}

// NewBLE creates a disconnected BLE UART transport.
func NewBLE(logger *logrus.Logger) *BLE {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLE{logger: logger}
}

func (b *BLE) Kind() Kind {
	return KindBLE
}

func (b *BLE) Connect(ctx context.Context, address string, params Params) error {
	b.connMutex.Lock()
	defer b.connMutex.Unlock()

	if b.client != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, b.address)
	}

	params = params.Normalize()
	if err := params.Validate(KindBLE); err != nil {
		return err
	}

	if _, err := defaultDevice(); err != nil {
		return &ConnectionError{Op: "connect", ID: address, Err: fmt.Errorf("failed to create BLE device: %w", err)}
	}

	b.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": params.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, params.ConnectTimeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		return &ConnectionError{Op: "connect", ID: address, Err: NormalizeError(err)}
	}

	txChar, rxChar, err := findUART(client)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			b.logger.WithError(cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return &ConnectionError{Op: "discover", ID: address, Err: err}
	}

	rx := newRxPump(params.BufferSize, b.logger)
	if err := client.Subscribe(txChar, false, func(data []byte) {
		b.logger.WithField("bytes", len(data)).Debug("Received notification")
		rx.push(data)
	}); err != nil {
		_ = client.CancelConnection()
		return &ConnectionError{Op: "subscribe", ID: address, Err: err}
	}

	b.client = client
	b.rxChar = rxChar
	b.address = address
	b.rx = rx

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	b.monitor = stopMonitor
	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(monitorCtx, "ble-disconnect-monitor", func(ctx context.Context) {
			select {
			case <-notifier.Disconnected():
				b.logger.WithField("address", address).Warn("BLE device disconnected")
				rx.setErr(fmt.Errorf("%w: device disconnected", ErrNotConnected))
			case <-ctx.Done():
			}
		})
	}

	b.logger.WithField("address", address).Info("BLE UART connection established")
	return nil
}

func findUART(client ble.Client) (tx, rx *ble.Characteristic, err error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	for _, svc := range profile.Services {
		if !svc.UUID.Equal(UARTServiceUUID) {
			continue
		}
		for _, c := range svc.Characteristics {
			switch {
			case c.UUID.Equal(UARTTxCharUUID):
				tx = c
			case c.UUID.Equal(UARTRxCharUUID):
				rx = c
			}
		}
	}

	switch {
	case tx == nil && rx == nil:
		return nil, nil, fmt.Errorf("%w: UART service %s not found", ErrUnsupported, UARTServiceUUID)
	case tx == nil:
		return nil, nil, fmt.Errorf("%w: TX characteristic %s not found", ErrUnsupported, UARTTxCharUUID)
	case rx == nil:
		return nil, nil, fmt.Errorf("%w: RX characteristic %s not found", ErrUnsupported, UARTRxCharUUID)
	}
	return tx, rx, nil
}

func (b *BLE) Disconnect() error {
	b.connMutex.Lock()
	defer b.connMutex.Unlock()

	if b.client == nil {
		return ErrNotConnected
	}

	b.monitor()
	err := b.client.CancelConnection()
	if err != nil {
		b.logger.WithError(err).Warn("Error disconnecting from device")
	}

	b.logger.WithField("address", b.address).Info("Disconnected from BLE device")
	b.client = nil
	b.rxChar = nil
	b.address = ""
	b.rx = nil
	b.monitor = nil
	return nil
}

// Send writes data in 20-byte chunks, pausing between chunks so small devices keep up.
func (b *BLE) Send(data []byte) error {
	b.connMutex.RLock()
	client, rxChar := b.client, b.rxChar
	b.connMutex.RUnlock()

	if client == nil {
		return ErrNotConnected
	}

	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()

	for len(data) > 0 {
		n := min(len(data), bleChunkSize)
		if err := client.WriteCharacteristic(rxChar, data[:n], false); err != nil {
			return fmt.Errorf("failed to write to RX characteristic: %w", NormalizeError(err))
		}
		b.logger.WithField("bytes", n).Debug("Wrote chunk to device")

		data = data[n:]
		if len(data) > 0 {
			time.Sleep(bleChunkDelay)
		}
	}
	return nil
}

func (b *BLE) Receive() ([]byte, error) {
	b.connMutex.RLock()
	rx := b.rx
	b.connMutex.RUnlock()

	if rx == nil {
		return nil, ErrNotConnected
	}
	return rx.drain()
}

func (b *BLE) IsConnected() bool {
	b.connMutex.RLock()
	defer b.connMutex.RUnlock()
	return b.client != nil
}
