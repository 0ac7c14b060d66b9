package command

import (
	"errors"
	"fmt"
)

const (
	// ChannelCount is the number of output channels on a hub
	ChannelCount = 4

	// MaxValue and MinValue bound a channel value; sign is direction, magnitude is power
	MaxValue = 255
	MinValue = -255

	// remoteControlOpcode prefixes every single-channel write
	remoteControlOpcode byte = 0x01
)

// ErrInvalidChannel is returned when a channel index falls outside 0..ChannelCount-1
var ErrInvalidChannel = errors.New("invalid channel")

// Kind identifies the variant of a Command
type Kind int

const (
	KindRemoteControl Kind = iota
	KindQuickDrive
	KindReadCharacteristic
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindRemoteControl:
		return "RemoteControl"
	case KindQuickDrive:
		return "QuickDrive"
	case KindReadCharacteristic:
		return "ReadCharacteristic"
	case KindShutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is one unit of work for a hub. It is a value type: the encoded
// payload is computed once at construction and never changes.
type Command struct {
	kind           Kind
	channel        int
	values         [ChannelCount]int
	payload        [4]byte
	hasPayload     bool
	characteristic Characteristic
}

// NewRemoteControl builds a single-channel write. The value saturates at ±255.
//
// Wire format: [0x01, channel, invert, magnitude]
func NewRemoteControl(channel, value int) (Command, error) {
	if channel < 0 || channel >= ChannelCount {
		return Command{}, fmt.Errorf("%w: %d (must be 0..%d)", ErrInvalidChannel, channel, ChannelCount-1)
	}

	value = Clamp(value)

	var invert byte
	if value < 0 {
		invert = 1
	}

	cmd := Command{
		kind:           KindRemoteControl,
		channel:        channel,
		payload:        [4]byte{remoteControlOpcode, byte(channel), invert, magnitude(value)},
		hasPayload:     true,
		characteristic: CharacteristicRemoteControl,
	}
	cmd.values[0] = value
	return cmd, nil
}

// NewQuickDrive builds a write of all four channels in one message.
//
// Each byte carries the magnitude rounded down to an even number with the
// direction in the low bit.
func NewQuickDrive(v1, v2, v3, v4 int) Command {
	cmd := Command{
		kind:           KindQuickDrive,
		channel:        -1,
		hasPayload:     true,
		characteristic: CharacteristicQuickDrive,
	}
	for i, v := range [ChannelCount]int{v1, v2, v3, v4} {
		v = Clamp(v)
		cmd.values[i] = v
		cmd.payload[i] = encodeQuickDriveByte(v)
	}
	return cmd
}

// NewReadCharacteristic builds a read request. It carries no payload.
func NewReadCharacteristic(c Characteristic) Command {
	return Command{
		kind:           KindReadCharacteristic,
		channel:        -1,
		characteristic: c,
	}
}

// NewShutdown builds the loop-termination sentinel. It is never transmitted.
func NewShutdown() Command {
	return Command{kind: KindShutdown, channel: -1}
}

func (c Command) Kind() Kind { return c.kind }

// IsShutdown reports whether c is the termination sentinel
func (c Command) IsShutdown() bool { return c.kind == KindShutdown }

// Channel returns the targeted channel of a RemoteControl command, -1 otherwise
func (c Command) Channel() int { return c.channel }

// Value returns the clamped value of a RemoteControl command
func (c Command) Value() int { return c.values[0] }

// Values returns the clamped values of a QuickDrive command
func (c Command) Values() [ChannelCount]int { return c.values }

// Characteristic returns the characteristic the command reads or writes
func (c Command) Characteristic() Characteristic { return c.characteristic }

// Payload returns a copy of the encoded bytes, nil for commands without a payload
func (c Command) Payload() []byte {
	if !c.hasPayload {
		return nil
	}
	out := make([]byte, len(c.payload))
	copy(out, c.payload[:])
	return out
}

// IsWrite reports whether the command changes channel outputs
func (c Command) IsWrite() bool {
	return c.kind == KindRemoteControl || c.kind == KindQuickDrive
}

func (c Command) String() string {
	switch c.kind {
	case KindRemoteControl:
		return fmt.Sprintf("RemoteControl(channel=%d, value=%d)", c.channel, c.values[0])
	case KindQuickDrive:
		return fmt.Sprintf("QuickDrive(%d, %d, %d, %d)", c.values[0], c.values[1], c.values[2], c.values[3])
	case KindReadCharacteristic:
		return fmt.Sprintf("ReadCharacteristic(%s)", c.characteristic)
	default:
		return c.kind.String()
	}
}

// Clamp saturates v into [MinValue, MaxValue]
func Clamp(v int) int {
	if v > MaxValue {
		return MaxValue
	}
	if v < MinValue {
		return MinValue
	}
	return v
}

func magnitude(v int) byte {
	if v < 0 {
		v = -v
	}
	return byte(min(MaxValue, v))
}

func encodeQuickDriveByte(v int) byte {
	b := magnitude(v) & 0xFE
	if v < 0 {
		b |= 0x01
	}
	return b
}

// DecodeQuickDriveByte reverses the quick drive byte encoding. The low bit of
// the magnitude is lost on the wire, so odd magnitudes come back one lower.
func DecodeQuickDriveByte(b byte) int {
	m := int(b & 0xFE)
	if b&0x01 != 0 {
		return -m
	}
	return m
}

// Envelope tags a command with its owning hub for dispatchers shared across hubs
type Envelope struct {
	Hub     string
	Command Command
}

// IsShutdown reports whether the wrapped command is the termination sentinel
func (e Envelope) IsShutdown() bool { return e.Command.IsShutdown() }
