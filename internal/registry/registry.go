// Package registry owns the set of known hubs, their dispatchers and the
// routing of transport acknowledgments back to the right gate.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/dispatch"
	"github.com/srg/brickd/internal/hub"
	"github.com/srg/brickd/internal/store"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/time/rate"
)

// ErrUnknownHub is returned for an address the registry does not know
var ErrUnknownHub = errors.New("unknown hub")

// Mode selects how hubs share dispatchers
type Mode string

const (
	// ModePerHub gives every hub its own queue, gate and worker
	ModePerHub Mode = "per_hub"
	// ModeShared serves all hubs through one queue of envelopes and one gate:
	// a single write is in flight across all hubs at a time
	ModeShared Mode = "shared"
)

const DefaultSharedQueueSize = 20

// Option configures a Registry
type Option func(*options)

type options struct {
	logger           *logrus.Logger
	mode             Mode
	queueSize        int
	sharedQueueSize  int
	journalSize      uint32
	watchdogTimeout  time.Duration
	minWriteInterval time.Duration
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithQueueSize sets the per-hub queue capacity
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithSharedQueueSize sets the capacity of the shared queue
func WithSharedQueueSize(n int) Option {
	return func(o *options) { o.sharedQueueSize = n }
}

func WithJournalSize(n uint32) Option {
	return func(o *options) { o.journalSize = n }
}

func WithWatchdog(d time.Duration) Option {
	return func(o *options) { o.watchdogTimeout = d }
}

// WithMinWriteInterval spaces consecutive writes of one dispatcher by at least d
func WithMinWriteInterval(d time.Duration) Option {
	return func(o *options) { o.minWriteInterval = d }
}

// Registry is the address→hub mapping plus the lifecycle of the dispatchers
// serving it. Structural changes (add, forget, load, start, stop) are
// serialized by one mutex; the command and acknowledgment paths only do
// lock-free lookups.
type Registry struct {
	transport hub.Transport
	store     store.Store
	opts      options
	logger    *logrus.Logger

	mu      sync.Mutex
	hubs    *orderedmap.OrderedMap[string, *hub.Hub] // display order
	running bool

	routes *hashmap.Map[string, *hub.Hub]
	shared *dispatch.Dispatcher[command.Envelope]
}

// New creates a stopped registry with no hubs
func New(transport hub.Transport, st store.Store, opts ...Option) *Registry {
	o := options{
		mode:            ModePerHub,
		queueSize:       hub.DefaultQueueSize,
		sharedQueueSize: DefaultSharedQueueSize,
		journalSize:     hub.DefaultJournalSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}

	r := &Registry{
		transport: transport,
		store:     st,
		opts:      o,
		logger:    o.logger,
		hubs:      orderedmap.New[string, *hub.Hub](),
		routes:    hashmap.New[string, *hub.Hub](),
	}

	if o.mode == ModeShared {
		var dopts []dispatch.Option
		dopts = append(dopts, dispatch.WithLogger(o.logger))
		if l := r.newLimiter(); l != nil {
			dopts = append(dopts, dispatch.WithLimiter(l))
		}
		r.shared = dispatch.New[command.Envelope]("shared", o.sharedQueueSize,
			command.Envelope{Command: command.NewShutdown()}, &sharedHandler{r: r}, dopts...)
	}
	return r
}

// Mode returns the dispatch mode
func (r *Registry) Mode() Mode { return r.opts.mode }

// Start starts every dispatcher. Calling it while running reports
// dispatch.ErrAlreadyStarted and changes nothing.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.logger.Warn("Hub registry has already been started")
		return dispatch.ErrAlreadyStarted
	}

	if r.shared != nil {
		if err := r.shared.Start(); err != nil {
			return err
		}
	}
	for pair := r.hubs.Oldest(); pair != nil; pair = pair.Next() {
		if err := pair.Value.Start(); err != nil && !errors.Is(err, dispatch.ErrAlreadyStarted) {
			return fmt.Errorf("start hub %s: %w", pair.Key, err)
		}
	}

	r.running = true
	r.logger.WithFields(logrus.Fields{
		"mode": r.opts.mode,
		"hubs": r.hubs.Len(),
	}).Info("Hub registry started")
	return nil
}

// Stop stops every dispatcher, discarding queued commands. Calling it while
// stopped reports dispatch.ErrNotRunning and changes nothing.
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		r.logger.Warn("Hub registry has not been started")
		return dispatch.ErrNotRunning
	}

	var errs []error
	for pair := r.hubs.Oldest(); pair != nil; pair = pair.Next() {
		if err := pair.Value.Stop(); err != nil && !errors.Is(err, dispatch.ErrNotRunning) {
			errs = append(errs, fmt.Errorf("stop hub %s: %w", pair.Key, err))
		}
	}
	if r.shared != nil {
		if err := r.shared.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	r.running = false
	r.logger.Info("Hub registry stopped")
	return errors.Join(errs...)
}

// Running reports whether the dispatchers are running
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Add registers a hub, or renames it if it is already known
func (r *Registry) Add(address, name string) (*hub.Hub, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrUnknownHub)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hubs.Get(address); ok {
		h.SetName(name)
		return h, nil
	}
	return r.addLocked(address, name)
}

func (r *Registry) addLocked(address, name string) (*hub.Hub, error) {
	h := hub.New(address, name, r.transport, r.hubOptions()...)
	if r.running {
		if err := h.Start(); err != nil {
			return nil, fmt.Errorf("start hub %s: %w", address, err)
		}
	}

	r.hubs.Set(address, h)
	r.routes.Set(address, h)

	r.logger.WithFields(logrus.Fields{
		"address": address,
		"name":    h.Name(),
	}).Debug("Hub added")
	return h, nil
}

// Rename changes the display name of a known hub
func (r *Registry) Rename(address, name string) error {
	h, ok := r.routes.Get(address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHub, address)
	}
	h.SetName(name)
	return nil
}

// Forget removes a hub and its queue. Unknown addresses are ignored.
func (r *Registry) Forget(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(address)
}

func (r *Registry) forgetLocked(address string) {
	h, ok := r.hubs.Delete(address)
	if !ok {
		return
	}
	r.routes.Del(address)

	if err := h.Stop(); err != nil && !errors.Is(err, dispatch.ErrNotRunning) {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Failed to stop forgotten hub")
	}
	r.logger.WithField("address", address).Info("Hub forgotten")
}

// Load replaces the hub set with the persisted one. Hubs that stay keep their
// live state; hubs missing from the store are forgotten. If the store cannot
// be read the current set is left untouched.
func (r *Registry) Load(ctx context.Context) error {
	names, err := r.store.ReadAll(ctx)
	if err != nil {
		r.logger.WithField("error", err).Error("Failed to load hub registry")
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for pair := r.hubs.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := names[pair.Key]; !ok {
			stale = append(stale, pair.Key)
		}
	}
	for _, addr := range stale {
		r.forgetLocked(addr)
	}

	addrs := make([]string, 0, len(names))
	for addr := range names {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		if h, ok := r.hubs.Get(addr); ok {
			h.SetName(names[addr])
			continue
		}
		if _, err := r.addLocked(addr, names[addr]); err != nil {
			return err
		}
	}

	r.logger.WithField("hubs", r.hubs.Len()).Info("Hub registry loaded")
	return nil
}

// Save writes the current address→name set, replacing what was stored
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	names := make(map[string]string, r.hubs.Len())
	for pair := r.hubs.Oldest(); pair != nil; pair = pair.Next() {
		names[pair.Key] = pair.Value.Name()
	}
	r.mu.Unlock()

	if err := r.store.WriteAll(ctx, names); err != nil {
		r.logger.WithField("error", err).Error("Failed to save hub registry")
		return err
	}
	r.logger.WithField("hubs", len(names)).Info("Hub registry saved")
	return nil
}

// Hub returns the live hub for address
func (r *Registry) Hub(address string) (*hub.Hub, bool) {
	return r.routes.Get(address)
}

// Addresses returns the known addresses in display order
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.hubs.Len())
	for pair := r.hubs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Hubs returns a snapshot of every hub in display order. The snapshots share
// nothing with the live hubs.
func (r *Registry) Hubs() []hub.Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]hub.Info, 0, r.hubs.Len())
	for pair := r.hubs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Info())
	}
	return out
}

// SendChannelCommand queues a single-channel write for the hub at address
func (r *Registry) SendChannelCommand(address string, channel, value int) error {
	h, err := r.lookup(address)
	if err != nil {
		return err
	}
	return h.SendChannelCommand(channel, value)
}

// SendQuickDrive queues a four-channel write for the hub at address
func (r *Registry) SendQuickDrive(address string, v1, v2, v3, v4 int) error {
	h, err := r.lookup(address)
	if err != nil {
		return err
	}
	return h.SendQuickDrive(v1, v2, v3, v4)
}

// ReadCharacteristic queues a characteristic read for the hub at address
func (r *Registry) ReadCharacteristic(address string, c command.Characteristic) error {
	h, err := r.lookup(address)
	if err != nil {
		return err
	}
	return h.ReadCharacteristic(c)
}

// OnWriteComplete routes a transport acknowledgment to the gate waiting for
// it. It reports false when no write for address was in flight.
func (r *Registry) OnWriteComplete(address string) bool {
	if r.shared != nil {
		// the hub may have been forgotten while its write was in flight;
		// the gate still has to open
		return r.shared.AcknowledgeIf(func(env command.Envelope) bool { return env.Hub == address })
	}

	h, ok := r.routes.Get(address)
	if !ok {
		r.logger.WithField("address", address).Warn("Acknowledgment for unknown hub")
		return false
	}
	return h.OnWriteComplete()
}

// OnWriteFailed routes a late transport failure to the gate waiting for the
// write. The channel cache keeps its previous values.
func (r *Registry) OnWriteFailed(address string) bool {
	if r.shared != nil {
		return r.shared.AbandonIf(func(env command.Envelope) bool { return env.Hub == address })
	}

	h, ok := r.routes.Get(address)
	if !ok {
		return false
	}
	return h.OnWriteFailed()
}

// OnCharacteristicRead stores a value the transport read from a hub
func (r *Registry) OnCharacteristicRead(address string, c command.Characteristic, data []byte) {
	h, ok := r.routes.Get(address)
	if !ok {
		return
	}
	h.SetCharacteristic(c, data)

	r.logger.WithFields(logrus.Fields{
		"address":        address,
		"characteristic": c.String(),
		"value":          fmt.Sprintf("% X", data),
	}).Debug("Characteristic read")
}

// SetConnected records a connection change reported by the transport
func (r *Registry) SetConnected(address string, connected bool) {
	if h, ok := r.routes.Get(address); ok {
		h.SetConnected(connected)
	}
}

// Close stops the dispatchers if they run and closes the store
func (r *Registry) Close() error {
	if err := r.Stop(); err != nil && !errors.Is(err, dispatch.ErrNotRunning) {
		return err
	}
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *Registry) lookup(address string) (*hub.Hub, error) {
	h, ok := r.routes.Get(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHub, address)
	}
	return h, nil
}

func (r *Registry) hubOptions() []hub.Option {
	opts := []hub.Option{
		hub.WithLogger(r.logger),
		hub.WithQueueSize(r.opts.queueSize),
		hub.WithJournalSize(r.opts.journalSize),
		hub.WithWatchdog(r.opts.watchdogTimeout),
	}
	if r.shared != nil {
		opts = append(opts, hub.WithSubmit(r.submitShared))
	} else if l := r.newLimiter(); l != nil {
		opts = append(opts, hub.WithLimiter(l))
	}
	return opts
}

func (r *Registry) newLimiter() *rate.Limiter {
	if r.opts.minWriteInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(r.opts.minWriteInterval), 1)
}

func (r *Registry) submitShared(h *hub.Hub, cmd command.Command) error {
	return r.shared.Enqueue(command.Envelope{Hub: h.Address(), Command: cmd})
}

// sharedHandler connects the shared dispatcher to the hubs it serves
type sharedHandler struct {
	r *Registry
}

func (s *sharedHandler) Send(env command.Envelope) error {
	h, ok := s.r.routes.Get(env.Hub)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHub, env.Hub)
	}
	return h.Send(env.Command)
}

func (s *sharedHandler) Acknowledged(env command.Envelope) {
	if h, ok := s.r.routes.Get(env.Hub); ok {
		h.Acknowledged(env.Command)
	}
}
