package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/hub"
	"github.com/srg/brickd/internal/registry"
	"github.com/srg/brickd/internal/store"
	"github.com/srg/brickd/internal/transport/goble"
	"github.com/srg/brickd/pkg/config"
)

const ackPollInterval = 10 * time.Millisecond

// Link is what the CLI needs from a BLE transport
type Link interface {
	hub.Transport
	SetListener(l goble.Listener)
	Connect(ctx context.Context, address string) error
	Close() error
}

// linkFactory creates the BLE transport (can be overridden in tests)
var linkFactory = func(cfg *config.Config, logger *logrus.Logger) Link {
	return goble.New(goble.WithLogger(logger), goble.WithConnectTimeout(cfg.ConnectTimeout))
}

// app is one CLI invocation: config, persisted registry and, once needed, the link
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *registry.Registry
	link     Link
	timeout  time.Duration
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	link := linkFactory(cfg, logger)
	reg := registry.New(link, st,
		registry.WithLogger(logger),
		registry.WithMode(registry.Mode(cfg.DispatchMode)),
		registry.WithQueueSize(cfg.QueueSize),
		registry.WithSharedQueueSize(cfg.SharedQueueSize),
		registry.WithJournalSize(cfg.JournalSize),
		registry.WithWatchdog(cfg.WatchdogTimeout),
		registry.WithMinWriteInterval(cfg.MinWriteInterval),
	)
	link.SetListener(reg)

	if err := reg.Load(cmd.Context()); err != nil {
		_ = reg.Close()
		return nil, err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		link:     link,
		timeout:  timeout,
	}, nil
}

// connect registers unknown addresses for this run only, connects every hub
// and starts dispatching
func (a *app) connect(ctx context.Context, addresses ...string) error {
	for _, address := range addresses {
		if _, ok := a.registry.Hub(address); !ok {
			if _, err := a.registry.Add(address, ""); err != nil {
				return err
			}
		}
		if err := a.link.Connect(ctx, address); err != nil {
			return err
		}
	}
	if err := a.registry.Start(); err != nil {
		return fmt.Errorf("failed to start dispatching: %w", err)
	}
	return nil
}

// close stops dispatching, closes the store and drops every connection
func (a *app) close() error {
	return errors.Join(a.registry.Close(), a.link.Close())
}

func (a *app) hub(address string) (*hub.Hub, error) {
	h, ok := a.registry.Hub(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownHub, address)
	}
	return h, nil
}

// waitWrite waits until h acknowledges a write made at or after since
func (a *app) waitWrite(ctx context.Context, h *hub.Hub, since time.Time) error {
	return a.waitFor(ctx, h, func() bool {
		w, ok := h.LastWrite()
		return ok && !w.At.Before(since)
	})
}

// waitRead waits until a value for c has been read from h
func (a *app) waitRead(ctx context.Context, h *hub.Hub, c command.Characteristic) ([]byte, error) {
	var data []byte
	err := a.waitFor(ctx, h, func() bool {
		v, ok := h.Characteristic(c)
		data = v
		return ok
	})
	return data, err
}

func (a *app) waitFor(ctx context.Context, h *hub.Hub, cond func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ticker := time.NewTicker(ackPollInterval)
	defer ticker.Stop()

	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s within %s", ErrNoAcknowledgment, h.Name(), a.timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
