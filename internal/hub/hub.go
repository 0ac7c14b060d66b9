package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/dispatch"
	"golang.org/x/time/rate"
)

const (
	DefaultQueueSize   = 100
	DefaultJournalSize = 32
)

// Transport puts an encoded command on the wire. A nil error means the write
// was accepted locally and an acknowledgment will follow.
type Transport interface {
	Send(address string, cmd command.Command) error
}

// SubmitFunc hands a command to a dispatcher shared by several hubs
type SubmitFunc func(h *Hub, cmd command.Command) error

// Write is an acknowledged command and when its acknowledgment arrived
type Write struct {
	Command command.Command
	At      time.Time
}

// Info is a point-in-time copy of a hub's observable state
type Info struct {
	Address   string
	Name      string
	Connected bool
	Channels  [command.ChannelCount]int
	LastWrite *Write
}

// Option configures a Hub
type Option func(*options)

type options struct {
	logger          *logrus.Logger
	queueSize       int
	journalSize     uint32
	watchdogTimeout time.Duration
	limiter         *rate.Limiter
	submit          SubmitFunc
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithQueueSize sets the capacity of the hub's own command queue
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithJournalSize sets how many acknowledged writes the journal keeps
func WithJournalSize(n uint32) Option {
	return func(o *options) { o.journalSize = n }
}

// WithWatchdog zeroes all channels when no write refreshes a non-zero output
// within d. Zero disables it.
func WithWatchdog(d time.Duration) Option {
	return func(o *options) { o.watchdogTimeout = d }
}

// WithLimiter paces the hub's own dispatcher
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithSubmit routes commands to a shared dispatcher instead of a per-hub one
func WithSubmit(fn SubmitFunc) Option {
	return func(o *options) { o.submit = fn }
}

// Hub is one BLE brick: its identity, connection flag, channel state cache and
// the path commands take to the transport.
//
// The channel cache is written only when an acknowledgment arrives, and the
// gate keeps at most one write in flight, so there is a single writer at any
// time. Readers get a consistent four-slot snapshot without locking.
type Hub struct {
	address   string
	name      atomic.Pointer[string]
	connected atomic.Bool
	channels  atomic.Pointer[[command.ChannelCount]int]
	lastWrite atomic.Pointer[Write]

	transport  Transport
	dispatcher *dispatch.Dispatcher[command.Command]
	submit     SubmitFunc
	logger     *logrus.Logger

	journal mpmc.RichOverlappedRingBuffer[Write]

	readsMu sync.RWMutex
	reads   map[command.Characteristic][]byte

	watchdog *watchdog
}

// New creates a hub. Without WithSubmit it owns a dispatcher that must be
// started before commands are accepted.
func New(address, name string, transport Transport, opts ...Option) *Hub {
	o := options{
		queueSize:   DefaultQueueSize,
		journalSize: DefaultJournalSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.journalSize == 0 {
		o.journalSize = DefaultJournalSize
	}

	h := &Hub{
		address:   address,
		transport: transport,
		submit:    o.submit,
		logger:    o.logger,
		journal:   mpmc.NewOverlappedRingBuffer[Write](o.journalSize),
		reads:     make(map[command.Characteristic][]byte),
	}
	h.SetName(name)
	h.channels.Store(&[command.ChannelCount]int{})

	if h.submit == nil {
		var dopts []dispatch.Option
		dopts = append(dopts, dispatch.WithLogger(o.logger))
		if o.limiter != nil {
			dopts = append(dopts, dispatch.WithLimiter(o.limiter))
		}
		h.dispatcher = dispatch.New[command.Command](address, o.queueSize, command.NewShutdown(), h, dopts...)
	}

	if o.watchdogTimeout > 0 {
		h.watchdog = newWatchdog(o.watchdogTimeout, h.fireWatchdog)
	}
	return h
}

// Address returns the stable hub identifier
func (h *Hub) Address() string { return h.address }

// Name returns the display name
func (h *Hub) Name() string { return *h.name.Load() }

// SetName changes the display name; an empty name falls back to the address
func (h *Hub) SetName(name string) {
	if name == "" {
		name = h.address
	}
	h.name.Store(&name)
}

// Connected reports the last connection state the transport announced
func (h *Hub) Connected() bool { return h.connected.Load() }

// SetConnected records a connection change. Losing the connection disarms
// the watchdog since no write can reach the hub anyway.
func (h *Hub) SetConnected(connected bool) {
	if h.connected.Swap(connected) == connected {
		return
	}
	h.logger.WithFields(logrus.Fields{
		"address":   h.address,
		"connected": connected,
	}).Info("Hub connection state changed")

	if !connected && h.watchdog != nil {
		h.watchdog.disarm()
	}
}

// Channels returns the last acknowledged value of every channel
func (h *Hub) Channels() [command.ChannelCount]int {
	return *h.channels.Load()
}

// Channel returns the last acknowledged value of one channel.
// Returns false if i is not a channel index.
func (h *Hub) Channel(i int) (int, bool) {
	if i < 0 || i >= command.ChannelCount {
		return 0, false
	}
	return h.channels.Load()[i], true
}

// Start starts the hub's own dispatcher. Hubs on a shared dispatcher have
// nothing to start.
func (h *Hub) Start() error {
	if h.dispatcher == nil {
		return nil
	}
	return h.dispatcher.Start()
}

// Stop stops the hub's own dispatcher and disarms the watchdog
func (h *Hub) Stop() error {
	if h.watchdog != nil {
		h.watchdog.disarm()
	}
	if h.dispatcher == nil {
		return nil
	}
	return h.dispatcher.Stop()
}

// Dispatcher returns the hub's own dispatcher, nil for hubs on a shared one
func (h *Hub) Dispatcher() *dispatch.Dispatcher[command.Command] {
	return h.dispatcher
}

// SendChannelCommand queues a single-channel write.
// Returns nil when the command was accepted, ErrNotConnected, ErrInvalidChannel
// or ErrQueueFull otherwise.
func (h *Hub) SendChannelCommand(channel, value int) error {
	if !h.Connected() {
		return ErrNotConnected
	}
	cmd, err := command.NewRemoteControl(channel, value)
	if err != nil {
		return err
	}
	return h.enqueue(cmd)
}

// SendQuickDrive queues a write of all four channels
func (h *Hub) SendQuickDrive(v1, v2, v3, v4 int) error {
	if !h.Connected() {
		return ErrNotConnected
	}
	return h.enqueue(command.NewQuickDrive(v1, v2, v3, v4))
}

// ReadCharacteristic queues a read; the value arrives via SetCharacteristic
func (h *Hub) ReadCharacteristic(c command.Characteristic) error {
	if !h.Connected() {
		return ErrNotConnected
	}
	if !c.Readable() {
		return fmt.Errorf("%w: %s", ErrNotReadable, c)
	}
	return h.enqueue(command.NewReadCharacteristic(c))
}

func (h *Hub) enqueue(cmd command.Command) error {
	var err error
	if h.submit != nil {
		err = h.submit(h, cmd)
	} else {
		err = h.dispatcher.Enqueue(cmd)
	}
	if err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"address": h.address,
		"command": cmd.String(),
	}).Debug("Command queued")
	return nil
}

// OnWriteComplete releases the hub's own dispatcher for the next command.
// It reports false when nothing was waiting for an acknowledgment.
func (h *Hub) OnWriteComplete() bool {
	if h.dispatcher == nil {
		return false
	}
	return h.dispatcher.Acknowledge()
}

// OnWriteFailed releases the hub's own dispatcher after the transport
// reported that an accepted write never completed. The cache is not touched.
func (h *Hub) OnWriteFailed() bool {
	if h.dispatcher == nil {
		return false
	}
	return h.dispatcher.Abandon()
}

// Send hands cmd to the transport. It is called by the dispatcher worker.
func (h *Hub) Send(cmd command.Command) error {
	if err := h.transport.Send(h.address, cmd); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrSendFailed, cmd, h.address, err)
	}
	h.logger.WithFields(logrus.Fields{
		"address": h.address,
		"command": cmd.String(),
		"payload": fmt.Sprintf("% X", cmd.Payload()),
	}).Debug("Command sent, awaiting acknowledgment")
	return nil
}

// Acknowledged applies an acknowledged command to the channel state cache
// and the write journal. It is called once per acknowledgment, before the
// next command is dequeued.
func (h *Hub) Acknowledged(cmd command.Command) {
	if !cmd.IsWrite() {
		return
	}

	next := *h.channels.Load()
	switch cmd.Kind() {
	case command.KindRemoteControl:
		next[cmd.Channel()] = cmd.Value()
	case command.KindQuickDrive:
		next = cmd.Values()
	}
	h.channels.Store(&next)

	w := &Write{Command: cmd, At: time.Now()}
	h.lastWrite.Store(w)
	if overwritten, err := h.journal.EnqueueM(*w); err != nil {
		h.logger.WithField("error", err).Warn("Write journal rejected record")
	} else if overwritten > 0 {
		h.logger.WithFields(logrus.Fields{
			"address":     h.address,
			"overwritten": overwritten,
		}).Debug("Write journal overwrote oldest records")
	}

	h.logger.WithFields(logrus.Fields{
		"address":  h.address,
		"command":  cmd.String(),
		"channels": next,
	}).Debug("Write acknowledged")

	if h.watchdog != nil {
		if allZero(next) {
			h.watchdog.disarm()
		} else {
			h.watchdog.arm()
		}
	}
}

// LastWrite returns the most recent acknowledged write
func (h *Hub) LastWrite() (Write, bool) {
	w := h.lastWrite.Load()
	if w == nil {
		return Write{}, false
	}
	return *w, true
}

// DrainJournal removes and returns the journaled writes, oldest first
func (h *Hub) DrainJournal() []Write {
	var out []Write
	for !h.journal.IsEmpty() {
		w, err := h.journal.Dequeue()
		if err != nil {
			break
		}
		out = append(out, w)
	}
	return out
}

// SetCharacteristic stores the value read from characteristic c
func (h *Hub) SetCharacteristic(c command.Characteristic, data []byte) {
	v := make([]byte, len(data))
	copy(v, data)

	h.readsMu.Lock()
	h.reads[c] = v
	h.readsMu.Unlock()
}

// Characteristic returns the last value read from characteristic c
func (h *Hub) Characteristic(c command.Characteristic) ([]byte, bool) {
	h.readsMu.RLock()
	defer h.readsMu.RUnlock()

	v, ok := h.reads[c]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Info returns a snapshot that shares nothing with the hub
func (h *Hub) Info() Info {
	info := Info{
		Address:   h.address,
		Name:      h.Name(),
		Connected: h.Connected(),
		Channels:  h.Channels(),
	}
	if w, ok := h.LastWrite(); ok {
		info.LastWrite = &w
	}
	return info
}

func (h *Hub) fireWatchdog() {
	logger := h.logger.WithFields(logrus.Fields{
		"address":  h.address,
		"channels": h.Channels(),
	})
	logger.Warn("No write refreshed the outputs in time, stopping all channels")

	if err := h.SendQuickDrive(0, 0, 0, 0); err != nil {
		logger.WithField("error", err).Error("Failed to queue watchdog stop")
	}
}

func allZero(v [command.ChannelCount]int) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
