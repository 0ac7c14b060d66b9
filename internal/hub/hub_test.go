//go:build test

package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/dispatch"
	"github.com/srg/brickd/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const testAddress = "00:07:80:d0:57:32"

type HubTestSuite struct {
	testutils.FakeTransportSuite
	hub *Hub
}

func (s *HubTestSuite) SetupTest() {
	s.FakeTransportSuite.SetupTest()
	s.hub = s.newHub()
}

func (s *HubTestSuite) TearDownTest() {
	if d := s.hub.Dispatcher(); d != nil && d.State() == dispatch.StateRunning {
		s.Require().NoError(s.hub.Stop())
	}
	s.FakeTransportSuite.TearDownTest()
}

func (s *HubTestSuite) newHub(opts ...Option) *Hub {
	h := New(testAddress, "Crane", s.Transport, append([]Option{WithLogger(s.Logger)}, opts...)...)
	s.Transport.OnAck(func(string) bool { return h.OnWriteComplete() })
	return h
}

func (s *HubTestSuite) startConnected(h *Hub) {
	s.Require().NoError(h.Start(), "MUST start the hub dispatcher")
	h.SetConnected(true)
}

func (s *HubTestSuite) TestNotConnected_RejectsBeforeQueue() {
	// GOAL: Verify a disconnected hub refuses commands without side effects
	//
	// TEST SCENARIO: Started but disconnected → every send API returns ErrNotConnected → nothing queued or sent

	s.Require().NoError(s.hub.Start())

	s.Assert().ErrorIs(s.hub.SendChannelCommand(0, 100), ErrNotConnected)
	s.Assert().ErrorIs(s.hub.SendQuickDrive(1, 2, 3, 4), ErrNotConnected)
	s.Assert().ErrorIs(s.hub.ReadCharacteristic(command.CharacteristicDeviceName), ErrNotConnected)

	s.Assert().Equal(0, s.hub.Dispatcher().QueueLen())
	s.ExpectNoSend()
	s.Assert().Equal([4]int{}, s.hub.Channels())
}

func (s *HubTestSuite) TestRemoteControl_CacheUpdatedOnAcknowledgment() {
	// GOAL: Verify a channel write reaches the wire encoded and updates exactly its slot after the ack
	//
	// TEST SCENARIO: RemoteControl(2, -130) → payload [01 02 01 82] → slot 2 stays 0 until ack → then -130

	s.startConnected(s.hub)

	s.Require().NoError(s.hub.SendChannelCommand(2, -130))

	rec := s.ExpectSend()
	s.Assert().Equal(testAddress, rec.Address)
	s.Assert().Equal([]byte{0x01, 0x02, 0x01, 0x82}, rec.Payload)
	s.Assert().Equal([4]int{0, 0, 0, 0}, s.hub.Channels(), "cache MUST NOT change before acknowledgment")

	s.Require().True(s.Transport.Ack(testAddress), "acknowledgment MUST release the in-flight write")
	s.Assert().Equal([4]int{0, 0, -130, 0}, s.hub.Channels(), "only slot 2 MUST change")
}

func (s *HubTestSuite) TestQuickDrive_CacheUpdatedOnAcknowledgment() {
	// GOAL: Verify a quick drive write is clamped, encoded and overwrites all four slots after the ack
	//
	// TEST SCENARIO: QuickDrive(300, -10, 0, -255) → payload [FE 0B 00 FF] → ack → cache (255, -10, 0, -255)

	s.startConnected(s.hub)

	s.Require().NoError(s.hub.SendQuickDrive(300, -10, 0, -255))

	rec := s.ExpectSend()
	s.Assert().Equal([]byte{0xFE, 0x0B, 0x00, 0xFF}, rec.Payload)
	s.Assert().Equal([4]int{}, s.hub.Channels())

	s.Require().True(s.Transport.Ack(testAddress))
	s.Assert().Equal([4]int{255, -10, 0, -255}, s.hub.Channels())
	v, ok := s.hub.Channel(1)
	s.Assert().True(ok)
	s.Assert().Equal(-10, v)
}

func (s *HubTestSuite) TestSendFailure_LeavesCacheAndUnblocks() {
	// GOAL: Verify a failed transport send never mutates the cache and does not stall the queue
	//
	// TEST SCENARIO: First send fails → cache untouched → second command sent without any ack

	s.startConnected(s.hub)
	s.Transport.FailNext(testAddress, nil)

	s.Require().NoError(s.hub.SendChannelCommand(0, 200), "enqueue MUST succeed; the failure happens after dequeue")
	s.Require().NoError(s.hub.SendChannelCommand(1, 50))

	first := s.ExpectSend()
	s.Assert().ErrorIs(first.Err, testutils.ErrFakeSendFailed)
	second := s.ExpectSend()
	s.Assert().NoError(second.Err)
	s.Assert().Equal(1, second.Command.Channel())

	s.Assert().Equal([4]int{}, s.hub.Channels(), "failed send MUST NOT mutate the cache")

	s.Require().True(s.Transport.Ack(testAddress))
	s.Assert().Equal([4]int{0, 50, 0, 0}, s.hub.Channels())
}

func (s *HubTestSuite) TestOneWriteInFlight() {
	// GOAL: Verify the hub never has two writes outstanding at the transport
	//
	// TEST SCENARIO: 10 writes with auto-ack → all delivered in order → max in flight is 1

	s.Transport.WithAutoAck()
	s.startConnected(s.hub)

	for i := 0; i < 10; i++ {
		s.Require().NoError(s.hub.SendChannelCommand(i%4, i*10))
	}
	for i := 0; i < 10; i++ {
		rec := s.ExpectSend()
		s.Assert().Equal(i*10, rec.Command.Value(), "commands MUST be sent FIFO")
	}

	s.WaitUntil(func() bool { return s.hub.Channels() == [4]int{80, 90, 60, 70} }, "last writes MUST land in the cache")
	s.Assert().Equal(1, s.Transport.MaxInflight(testAddress))
}

func (s *HubTestSuite) TestQueueFull() {
	// GOAL: Verify a full backlog drops the command and tells the producer
	//
	// TEST SCENARIO: Queue of 2 → one in flight + 2 queued → next returns ErrQueueFull

	h := s.newHub(WithQueueSize(2))
	s.startConnected(h)
	defer func() { s.Require().NoError(h.Stop()) }()

	s.Require().NoError(h.SendChannelCommand(0, 1))
	s.ExpectSend()
	s.Require().NoError(h.SendChannelCommand(0, 2))
	s.Require().NoError(h.SendChannelCommand(0, 3))

	s.Assert().ErrorIs(h.SendChannelCommand(0, 4), ErrQueueFull)
}

func (s *HubTestSuite) TestInvalidInput() {
	// GOAL: Verify malformed requests are refused before reaching the queue
	//
	// TEST SCENARIO: channel 4 → ErrInvalidChannel; write-only characteristic read → ErrNotReadable

	s.startConnected(s.hub)

	s.Assert().ErrorIs(s.hub.SendChannelCommand(4, 10), ErrInvalidChannel)
	s.Assert().ErrorIs(s.hub.SendChannelCommand(-1, 10), ErrInvalidChannel)
	s.Assert().ErrorIs(s.hub.ReadCharacteristic(command.CharacteristicQuickDrive), ErrNotReadable)
	s.ExpectNoSend()

	for _, i := range []int{-1, 4, 100} {
		v, ok := s.hub.Channel(i)
		s.Assert().False(ok, "channel %d MUST be reported as out of range", i)
		s.Assert().Zero(v)
	}
}

func (s *HubTestSuite) TestChannels_NeverTornByQuickDrive() {
	// GOAL: Verify a reader never observes a quick drive applied to only some channels
	//
	// TEST SCENARIO: QuickDrive(i, -i, i, -i) for i = 1..255 with auto-ack → concurrent reader checks every snapshot is one whole write

	s.Transport.WithAutoAck()
	s.startConnected(s.hub)

	done := make(chan struct{})
	exited := make(chan struct{})
	torn := make(chan [command.ChannelCount]int, 1)
	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			default:
			}
			ch := s.hub.Channels()
			if ch[1] != -ch[0] || ch[2] != ch[0] || ch[3] != -ch[0] {
				select {
				case torn <- ch:
				default:
				}
				return
			}
		}
	}()

	for i := 1; i <= 255; i++ {
		for {
			err := s.hub.SendQuickDrive(i, -i, i, -i)
			if !errors.Is(err, ErrQueueFull) {
				s.Require().NoError(err)
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	s.WaitUntil(func() bool { return s.hub.Channels() == [4]int{255, -255, 255, -255} }, "last quick drive MUST be acknowledged")
	close(done)
	<-exited

	select {
	case ch := <-torn:
		s.Failf("torn channel snapshot", "reader saw %v", ch)
	default:
	}
}

func (s *HubTestSuite) TestReadCharacteristic_DoesNotTouchCache() {
	// GOAL: Verify reads flow through the same gate but leave the channel cache alone
	//
	// TEST SCENARIO: Read model number → no payload on the wire → ack → cache unchanged, value stored

	s.Transport.WithReadValue(command.CharacteristicModelNumber, []byte("SBrick")).
		OnRead(func(_ string, c command.Characteristic, data []byte) { s.hub.SetCharacteristic(c, data) })
	s.startConnected(s.hub)

	s.Require().NoError(s.hub.ReadCharacteristic(command.CharacteristicModelNumber))
	rec := s.ExpectSend()
	s.Assert().Nil(rec.Payload)

	s.Require().True(s.Transport.Ack(testAddress))

	v, ok := s.hub.Characteristic(command.CharacteristicModelNumber)
	s.Require().True(ok)
	s.Assert().Equal("SBrick", string(v))
	s.Assert().Equal([4]int{}, s.hub.Channels())
	_, ok = s.hub.LastWrite()
	s.Assert().False(ok, "a read MUST NOT be recorded as a write")
}

func (s *HubTestSuite) TestLastWriteAndJournal() {
	// GOAL: Verify acknowledged writes are recorded and the journal keeps the most recent ones
	//
	// TEST SCENARIO: 6 writes through a journal of 4 → last write is the 6th → drained journal ends with it

	h := s.newHub(WithJournalSize(4))
	s.Transport.WithAutoAck()
	s.startConnected(h)
	defer func() { s.Require().NoError(h.Stop()) }()

	for i := 1; i <= 6; i++ {
		s.Require().NoError(h.SendChannelCommand(0, i))
	}
	s.WaitUntil(func() bool { return h.Channels()[0] == 6 }, "all writes MUST be acknowledged")

	w, ok := h.LastWrite()
	s.Require().True(ok)
	s.Assert().Equal(6, w.Command.Value())
	s.Assert().False(w.At.IsZero())

	journal := h.DrainJournal()
	s.Require().NotEmpty(journal)
	s.Assert().LessOrEqual(len(journal), 4, "journal MUST be bounded")
	s.Assert().Equal(6, journal[len(journal)-1].Command.Value(), "journal MUST end with the newest write")
	for i := 1; i < len(journal); i++ {
		s.Assert().Less(journal[i-1].Command.Value(), journal[i].Command.Value(), "journal MUST be oldest first")
	}
	s.Assert().Empty(h.DrainJournal(), "drain MUST empty the journal")
}

func (s *HubTestSuite) TestWatchdog_StopsOutputs() {
	// GOAL: Verify the deadman switch zeroes outputs when nothing refreshes them
	//
	// TEST SCENARIO: Watchdog 50ms → write 100 on channel 0 → no refresh → QuickDrive(0,0,0,0) sent → cache zero

	h := s.newHub(WithWatchdog(50 * time.Millisecond))
	s.Transport.WithAutoAck()
	s.startConnected(h)
	defer func() { s.Require().NoError(h.Stop()) }()

	s.Require().NoError(h.SendChannelCommand(0, 100))
	s.WaitUntil(func() bool { return h.Channels()[0] == 100 }, "write MUST be acknowledged")

	s.WaitUntil(func() bool { return h.Channels() == [4]int{} }, "watchdog MUST zero all channels")

	sent := s.Transport.Sent()
	last := sent[len(sent)-1].Command
	s.Assert().Equal(command.KindQuickDrive, last.Kind())
	s.Assert().Equal([4]int{}, last.Values())
	s.WaitUntil(func() bool { return !h.watchdog.armed() }, "zeroed outputs MUST disarm the watchdog")
}

func (s *HubTestSuite) TestWatchdog_DisarmedByZeroWrite() {
	// GOAL: Verify writing zeros disarms the watchdog so it never fires
	//
	// TEST SCENARIO: write 100 → write 0 → wait past timeout → only the two writes were sent

	h := s.newHub(WithWatchdog(50 * time.Millisecond))
	s.Transport.WithAutoAck()
	s.startConnected(h)
	defer func() { s.Require().NoError(h.Stop()) }()

	s.Require().NoError(h.SendChannelCommand(0, 100))
	s.Require().NoError(h.SendChannelCommand(0, 0))
	s.ExpectSend()
	s.ExpectSend()

	time.Sleep(120 * time.Millisecond)
	s.Assert().Len(s.Transport.Sent(), 2, "watchdog MUST NOT fire after outputs were zeroed")
}

func (s *HubTestSuite) TestNaming() {
	// GOAL: Verify the display name falls back to the address
	//
	// TEST SCENARIO: rename to "" → name is the address; Info snapshot reflects state

	s.Assert().Equal("Crane", s.hub.Name())
	s.hub.SetName("")
	s.Assert().Equal(testAddress, s.hub.Name())

	info := s.hub.Info()
	s.Assert().Equal(testAddress, info.Address)
	s.Assert().Equal(testAddress, info.Name)
	s.Assert().False(info.Connected)
	s.Assert().Nil(info.LastWrite)
}

func (s *HubTestSuite) TestSharedSubmit() {
	// GOAL: Verify a hub on a shared dispatcher hands commands to the submit function
	//
	// TEST SCENARIO: WithSubmit → send → submit receives hub and command; submit error is returned as-is

	var got []command.Command
	errBusy := errors.New("busy")
	var next error

	h := New(testAddress, "", s.Transport, WithLogger(s.Logger), WithSubmit(func(owner *Hub, cmd command.Command) error {
		s.Assert().Equal(testAddress, owner.Address())
		if next != nil {
			return next
		}
		got = append(got, cmd)
		return nil
	}))
	s.Assert().Nil(h.Dispatcher())
	s.Require().NoError(h.Start(), "a shared hub has nothing to start")
	h.SetConnected(true)

	s.Require().NoError(h.SendQuickDrive(1, 2, 3, 4))
	next = errBusy
	s.Assert().ErrorIs(h.SendChannelCommand(0, 1), errBusy)

	s.Require().Len(got, 1)
	s.Assert().Equal(command.KindQuickDrive, got[0].Kind())
	s.Assert().False(h.OnWriteComplete(), "a shared hub MUST NOT acknowledge on its own")
}

func TestHubTestSuite(t *testing.T) {
	suite.Run(t, new(HubTestSuite))
}
