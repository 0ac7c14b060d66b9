package hub

import (
	"errors"

	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/dispatch"
)

var (
	// ErrNotConnected rejects a command before it reaches the queue
	ErrNotConnected = errors.New("hub not connected")

	// ErrQueueFull means the command was dropped because the backlog is full
	ErrQueueFull = dispatch.ErrQueueFull

	// ErrInvalidChannel is returned for a channel outside 0..3
	ErrInvalidChannel = command.ErrInvalidChannel

	// ErrNotReadable is returned for a characteristic the hub cannot be asked to read
	ErrNotReadable = errors.New("characteristic is not readable")

	// ErrSendFailed wraps a transport failure after dequeue. It is logged by
	// the dispatcher and never returned to producers.
	ErrSendFailed = errors.New("send failed")
)
