package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/brickd/internal/dispatch"
	"github.com/srg/brickd/internal/hub"
	"github.com/srg/brickd/internal/registry"
	"github.com/srg/brickd/internal/store"
	"github.com/srg/brickd/internal/transport/goble"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "bluetooth off",
			err:  fmt.Errorf("failed to connect: %w", goble.ErrBluetoothOff),
			want: "Bluetooth is turned off; enable it and retry",
		},
		{
			name: "not connected",
			err:  fmt.Errorf("send: %w", hub.ErrNotConnected),
			want: "hub is not connected",
		},
		{
			name: "unknown hub",
			err:  fmt.Errorf("%w: aa", registry.ErrUnknownHub),
			want: "unknown hub: aa (see 'brickd hubs list')",
		},
		{
			name: "queue full",
			err:  dispatch.ErrQueueFull,
			want: "command queue is full; the hub is not keeping up",
		},
		{
			name: "persistence",
			err:  &store.PersistenceError{Op: "write", Path: "/tmp/hubs.yaml", Err: context.Canceled},
			want: "hub registry write failed for /tmp/hubs.yaml: context canceled",
		},
		{
			name: "passthrough",
			err:  errors.New("something else"),
			want: "something else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestParseInts(t *testing.T) {
	values, err := parseInts([]string{"2", "-130"}, "channel", "value")
	assert.NoError(t, err)
	assert.Equal(t, []int{2, -130}, values)

	_, err = parseInts([]string{"2", "fast"}, "channel", "value")
	assert.EqualError(t, err, `invalid value "fast": must be an integer`)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "SBrick", formatValue([]byte("SBrick")))
	assert.Equal(t, "80 01", formatValue([]byte{0x80, 0x01}))
	assert.Equal(t, "(empty)", formatValue(nil))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
}
