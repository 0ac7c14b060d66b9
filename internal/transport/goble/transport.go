// Package goble is the BLE transport for SBrick hubs built on go-ble.
//
// Send returns as soon as the write is handed to a per-write goroutine; the
// GATT write response (or read result) is then reported to the Listener as
// an acknowledgment.
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/groutine"
	"github.com/srg/brickd/internal/hub"
)

const DefaultConnectTimeout = 30 * time.Second

// DeviceFactory creates the local BLE adapter (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDefaultDevice

// Listener receives the asynchronous results of sends and connection changes
type Listener interface {
	OnWriteComplete(address string) bool
	OnWriteFailed(address string) bool
	OnCharacteristicRead(address string, c command.Characteristic, data []byte)
	SetConnected(address string, connected bool)
}

// Option configures a Transport
type Option func(*Transport)

func WithLogger(logger *logrus.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) { t.connectTimeout = d }
}

// Transport keeps one GATT client per connected hub
type Transport struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	devMu  sync.Mutex
	device ble.Device

	listenerMu sync.RWMutex
	listener   Listener

	links *hashmap.Map[string, *link]
}

// link is the live connection to one hub
type link struct {
	address string
	client  ble.Client
	chars   map[command.Characteristic]*ble.Characteristic
	ctx     context.Context
	cancel  context.CancelCauseFunc
}

func New(opts ...Option) *Transport {
	t := &Transport{
		connectTimeout: DefaultConnectTimeout,
		links:          hashmap.New[string, *link](),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logrus.New()
	}
	return t
}

// SetListener sets where acknowledgments and connection changes are reported
func (t *Transport) SetListener(l Listener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.listener = l
}

func (t *Transport) getListener() Listener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.listener
}

// Connected reports whether a link to address is up
func (t *Transport) Connected(address string) bool {
	_, ok := t.links.Get(address)
	return ok
}

// Connect dials the hub, discovers its profile and maps the characteristics
// the hub commands need
func (t *Transport) Connect(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("hub address is empty")
	}
	if t.Connected(address) {
		t.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return ErrAlreadyConnected
	}

	dev, err := t.adapter()
	if err != nil {
		return err
	}

	t.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": t.connectTimeout,
	}).Info("Connecting to hub...")

	connCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	client, err := dev.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial hub")
		return fmt.Errorf("failed to connect to hub %q: %w", address, NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		t.cancelConnection(client, address)
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	chars := mapCharacteristics(profile)
	if chars[command.CharacteristicRemoteControl] == nil || chars[command.CharacteristicQuickDrive] == nil {
		t.cancelConnection(client, address)
		return fmt.Errorf("%w: %s", ErrNotABrick, address)
	}

	l := &link{address: address, client: client, chars: chars}
	l.ctx, l.cancel = context.WithCancelCause(context.Background())
	if !t.links.Insert(address, l) {
		t.cancelConnection(client, address)
		return ErrAlreadyConnected
	}

	// CoreBluetooth and the HCI stack both report drops through Disconnected()
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(l.ctx, "ble-monitor-"+address, func(ctx context.Context) {
			defer groutine.Recover(ctx, t.logger)
			select {
			case <-dc.Disconnected():
				t.logger.WithField("address", address).Warn("Hub reported disconnection")
				t.drop(l, hub.ErrNotConnected)
			case <-ctx.Done():
			}
		})
	}

	t.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(chars),
	}).Info("Hub connected")

	if lst := t.getListener(); lst != nil {
		lst.SetConnected(address, true)
	}
	return nil
}

// Disconnect closes the link to address. Unknown addresses are ignored.
func (t *Transport) Disconnect(address string) error {
	l, ok := t.links.Get(address)
	if !ok {
		t.logger.WithField("address", address).Debug("Disconnect called but not connected")
		return nil
	}
	t.drop(l, nil)

	if err := l.client.CancelConnection(); err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Hub disconnected with errors")
		return NormalizeError(err)
	}
	t.logger.WithField("address", address).Info("Hub disconnected")
	return nil
}

// Close disconnects every hub
func (t *Transport) Close() error {
	var errs []error
	t.links.Range(func(address string, _ *link) bool {
		if err := t.Disconnect(address); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

// Send starts the GATT operation for cmd. A nil error means the listener will
// later get OnWriteComplete (or OnWriteFailed if the operation fails).
func (t *Transport) Send(address string, cmd command.Command) error {
	l, ok := t.links.Get(address)
	if !ok {
		return hub.ErrNotConnected
	}

	ch := l.chars[cmd.Characteristic()]
	if ch == nil {
		return fmt.Errorf("%w: %s on %s", ErrCharacteristicNotFound, cmd.Characteristic(), address)
	}

	switch cmd.Kind() {
	case command.KindRemoteControl, command.KindQuickDrive:
		payload := cmd.Payload()
		groutine.Go(l.ctx, "ble-write-"+address, func(ctx context.Context) {
			defer groutine.Recover(ctx, t.logger)
			t.complete(l, cmd, nil, l.client.WriteCharacteristic(ch, payload, false))
		})
	case command.KindReadCharacteristic:
		groutine.Go(l.ctx, "ble-read-"+address, func(ctx context.Context) {
			defer groutine.Recover(ctx, t.logger)
			data, err := l.client.ReadCharacteristic(ch)
			t.complete(l, cmd, data, err)
		})
	default:
		return fmt.Errorf("command %s cannot be sent", cmd.Kind())
	}
	return nil
}

func (t *Transport) complete(l *link, cmd command.Command, data []byte, err error) {
	lst := t.getListener()
	if lst == nil {
		return
	}

	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": l.address,
			"command": cmd.String(),
			"error":   NormalizeError(err),
		}).Error("GATT operation failed")
		lst.OnWriteFailed(l.address)
		return
	}

	if cmd.Kind() == command.KindReadCharacteristic {
		lst.OnCharacteristicRead(l.address, cmd.Characteristic(), data)
	}
	lst.OnWriteComplete(l.address)
}

// drop removes l from the link table once and reports the disconnection
func (t *Transport) drop(l *link, cause error) {
	if cur, ok := t.links.Get(l.address); !ok || cur != l {
		return
	}
	t.links.Del(l.address)
	l.cancel(cause)

	if lst := t.getListener(); lst != nil {
		lst.SetConnected(l.address, false)
	}
}

func (t *Transport) adapter() (ble.Device, error) {
	t.devMu.Lock()
	defer t.devMu.Unlock()

	if t.device != nil {
		return t.device, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	t.device = dev
	return dev, nil
}

func (t *Transport) cancelConnection(client ble.Client, address string) {
	if err := client.CancelConnection(); err != nil {
		t.logger.WithFields(logrus.Fields{
			"address":      address,
			"cancel_error": err,
		}).Warn("Failed to cancel connection after setup failure")
	}
}

func mapCharacteristics(p *ble.Profile) map[command.Characteristic]*ble.Characteristic {
	chars := make(map[command.Characteristic]*ble.Characteristic)
	if p == nil {
		return chars
	}
	for _, svc := range p.Services {
		for _, c := range svc.Characteristics {
			if kind, ok := characteristicFor(c.UUID.String()); ok {
				chars[kind] = c
			}
		}
	}
	return chars
}
