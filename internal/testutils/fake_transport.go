//go:build test

package testutils

import (
	"errors"
	"sync"
	"time"

	"github.com/srg/brickd/internal/command"
)

// ErrFakeSendFailed is what FakeTransport returns for scripted failures
var ErrFakeSendFailed = errors.New("fake transport: send failed")

// SentCommand is one command the fake transport accepted or refused
type SentCommand struct {
	Address string
	Command command.Command
	Payload []byte
	Err     error
}

// FakeTransport records every send and lets the test decide when the
// acknowledgment arrives. It tracks how many accepted writes per hub are
// awaiting acknowledgment so tests can check that never more than one is.
type FakeTransport struct {
	mu          sync.Mutex
	sent        []SentCommand
	inflight    map[string]int
	maxInflight map[string]int
	global      int
	maxGlobal   int
	failures    map[string][]error
	reads       map[command.Characteristic][]byte
	autoAck     bool

	onAck  func(address string) bool
	onRead func(address string, c command.Characteristic, data []byte)

	sentCh chan SentCommand
}

// NewFakeTransport returns a transport that accepts everything and never
// acknowledges on its own
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		inflight:    make(map[string]int),
		maxInflight: make(map[string]int),
		failures:    make(map[string][]error),
		reads:       make(map[command.Characteristic][]byte),
		sentCh:      make(chan SentCommand, 1024),
	}
}

// OnAck sets the callback Ack delivers to
func (f *FakeTransport) OnAck(fn func(address string) bool) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAck = fn
	return f
}

// OnRead sets the callback that receives characteristic values
func (f *FakeTransport) OnRead(fn func(address string, c command.Characteristic, data []byte)) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRead = fn
	return f
}

// WithAutoAck acknowledges every accepted write from a separate goroutine
func (f *FakeTransport) WithAutoAck() *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoAck = true
	return f
}

// WithReadValue sets the value returned for reads of c
func (f *FakeTransport) WithReadValue(c command.Characteristic, data []byte) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[c] = data
	return f
}

// FailNext makes the next send to address fail with err, or ErrFakeSendFailed if err is nil
func (f *FakeTransport) FailNext(address string, err error) {
	if err == nil {
		err = ErrFakeSendFailed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[address] = append(f.failures[address], err)
}

// Send implements the hub transport
func (f *FakeTransport) Send(address string, cmd command.Command) error {
	f.mu.Lock()
	rec := SentCommand{Address: address, Command: cmd, Payload: cmd.Payload()}

	if fs := f.failures[address]; len(fs) > 0 {
		rec.Err = fs[0]
		f.failures[address] = fs[1:]
		f.sent = append(f.sent, rec)
		f.mu.Unlock()
		f.sentCh <- rec
		return rec.Err
	}

	f.inflight[address]++
	f.maxInflight[address] = max(f.maxInflight[address], f.inflight[address])
	f.global++
	f.maxGlobal = max(f.maxGlobal, f.global)
	f.sent = append(f.sent, rec)
	autoAck := f.autoAck
	f.mu.Unlock()

	f.sentCh <- rec

	if autoAck {
		go f.Ack(address)
	}
	return nil
}

// Ack delivers the acknowledgment for the outstanding write to address.
// Read values are reported before the acknowledgment, as a real GATT read does.
func (f *FakeTransport) Ack(address string) bool {
	f.mu.Lock()
	if f.inflight[address] > 0 {
		f.inflight[address]--
		f.global--
	}
	var last command.Command
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Address == address && f.sent[i].Err == nil {
			last = f.sent[i].Command
			break
		}
	}
	onAck, onRead := f.onAck, f.onRead
	data, hasData := f.reads[last.Characteristic()]
	f.mu.Unlock()

	if last.Kind() == command.KindReadCharacteristic && hasData && onRead != nil {
		onRead(address, last.Characteristic(), data)
	}
	if onAck == nil {
		return false
	}
	return onAck(address)
}

// WaitForSend returns the next recorded send or false after timeout
func (f *FakeTransport) WaitForSend(timeout time.Duration) (SentCommand, bool) {
	select {
	case rec := <-f.sentCh:
		return rec, true
	case <-time.After(timeout):
		return SentCommand{}, false
	}
}

// Sent returns a copy of every recorded send
func (f *FakeTransport) Sent() []SentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentCommand(nil), f.sent...)
}

// MaxInflight returns the highest number of unacknowledged writes seen for address
func (f *FakeTransport) MaxInflight(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight[address]
}

// MaxGlobalInflight returns the highest number of unacknowledged writes across all hubs
func (f *FakeTransport) MaxGlobalInflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxGlobal
}
