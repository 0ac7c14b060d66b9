package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRemoteControl_Encoding(t *testing.T) {
	tests := []struct {
		name     string
		channel  int
		value    int
		expected []byte
	}{
		{
			name:     "negative value sets invert byte",
			channel:  2,
			value:    -130,
			expected: []byte{0x01, 0x02, 0x01, 0x82},
		},
		{
			name:     "positive value",
			channel:  0,
			value:    200,
			expected: []byte{0x01, 0x00, 0x00, 0xC8},
		},
		{
			name:     "zero encodes invert 0",
			channel:  3,
			value:    0,
			expected: []byte{0x01, 0x03, 0x00, 0x00},
		},
		{
			name:     "odd magnitude kept as is",
			channel:  1,
			value:    -1,
			expected: []byte{0x01, 0x01, 0x01, 0x01},
		},
		{
			name:     "overflow saturates",
			channel:  1,
			value:    1000,
			expected: []byte{0x01, 0x01, 0x00, 0xFF},
		},
		{
			name:     "underflow saturates",
			channel:  1,
			value:    -1000,
			expected: []byte{0x01, 0x01, 0x01, 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewRemoteControl(tt.channel, tt.value)
			require.NoError(t, err)

			assert.Equal(t, KindRemoteControl, cmd.Kind())
			assert.Equal(t, tt.expected, cmd.Payload(), "payload MUST match wire format")
			assert.Equal(t, tt.channel, cmd.Channel())
			assert.Equal(t, CharacteristicRemoteControl, cmd.Characteristic())
		})
	}
}

func TestNewRemoteControl_AllValues(t *testing.T) {
	for v := MinValue; v <= MaxValue; v++ {
		cmd, err := NewRemoteControl(0, v)
		require.NoError(t, err)

		payload := cmd.Payload()
		wantInvert := byte(0)
		if v < 0 {
			wantInvert = 1
		}
		abs := v
		if abs < 0 {
			abs = -abs
		}

		if !assert.Equal(t, wantInvert, payload[2], "invert byte for %d", v) ||
			!assert.Equal(t, byte(abs), payload[3], "magnitude byte for %d", v) ||
			!assert.Equal(t, v, cmd.Value()) {
			return
		}
	}
}

func TestNewRemoteControl_SaturationMatchesBoundary(t *testing.T) {
	for _, tc := range []struct{ in, boundary int }{
		{256, MaxValue}, {10_000, MaxValue}, {-256, MinValue}, {-10_000, MinValue},
	} {
		out, err := NewRemoteControl(1, tc.in)
		require.NoError(t, err)
		edge, err := NewRemoteControl(1, tc.boundary)
		require.NoError(t, err)

		assert.Equal(t, edge.Payload(), out.Payload(), "out-of-range %d MUST encode like %d", tc.in, tc.boundary)
		assert.Equal(t, tc.boundary, out.Value(), "stored value MUST be clamped")
	}
}

func TestNewRemoteControl_InvalidChannel(t *testing.T) {
	for _, ch := range []int{-1, 4, 100} {
		_, err := NewRemoteControl(ch, 10)
		assert.ErrorIs(t, err, ErrInvalidChannel, "channel %d MUST be rejected", ch)
	}
}

func TestNewQuickDrive_Encoding(t *testing.T) {
	cmd := NewQuickDrive(300, -10, 0, -255)

	assert.Equal(t, KindQuickDrive, cmd.Kind())
	assert.Equal(t, []byte{0xFE, 0x0B, 0x00, 0xFF}, cmd.Payload())
	assert.Equal(t, [ChannelCount]int{255, -10, 0, -255}, cmd.Values(), "values MUST be clamped")
	assert.Equal(t, CharacteristicQuickDrive, cmd.Characteristic())
	assert.Equal(t, -1, cmd.Channel())
}

func TestNewQuickDrive_SignMagnitudeRoundTrip(t *testing.T) {
	for v := MinValue; v <= MaxValue; v++ {
		cmd := NewQuickDrive(v, -v, v, -v)
		payload := cmd.Payload()

		for i, b := range payload {
			want := cmd.Values()[i]
			wantNegative := want < 0
			assert.Equal(t, wantNegative, b&0x01 == 1, "low bit MUST carry sign for %d", want)

			abs := want
			if abs < 0 {
				abs = -abs
			}
			assert.Equal(t, byte(abs)&0xFE, b&0xFE, "high bits MUST carry even magnitude for %d", want)

			decoded := DecodeQuickDriveByte(b)
			expected := abs &^ 1
			if wantNegative {
				expected = -expected
			}
			if !assert.Equal(t, expected, decoded, "decode MUST round-trip with low bit masked") {
				return
			}
		}
	}
}

func TestReadCharacteristicAndShutdown(t *testing.T) {
	read := NewReadCharacteristic(CharacteristicFirmwareRevision)
	assert.Equal(t, KindReadCharacteristic, read.Kind())
	assert.Nil(t, read.Payload(), "read MUST carry no payload")
	assert.Equal(t, CharacteristicFirmwareRevision, read.Characteristic())
	assert.False(t, read.IsWrite())

	stop := NewShutdown()
	assert.True(t, stop.IsShutdown())
	assert.Nil(t, stop.Payload())
	assert.True(t, Envelope{Hub: "AA", Command: stop}.IsShutdown())
}

func TestPayloadIsACopy(t *testing.T) {
	cmd := NewQuickDrive(10, 20, 30, 40)

	p := cmd.Payload()
	p[0] = 0xAA

	assert.Equal(t, byte(10), cmd.Payload()[0], "mutating a returned payload MUST NOT affect the command")
}

func TestCommand_String(t *testing.T) {
	rc, err := NewRemoteControl(2, -130)
	require.NoError(t, err)

	assert.Equal(t, "RemoteControl(channel=2, value=-130)", rc.String())
	assert.Equal(t, "QuickDrive(255, -10, 0, -255)", NewQuickDrive(300, -10, 0, -255).String())
	assert.Equal(t, "ReadCharacteristic(model-number)", NewReadCharacteristic(CharacteristicModelNumber).String())
	assert.Equal(t, "Shutdown", NewShutdown().String())
}

func TestParseCharacteristic(t *testing.T) {
	tests := []struct {
		input    string
		expected Characteristic
		wantErr  bool
	}{
		{input: "firmware-revision", expected: CharacteristicFirmwareRevision},
		{input: "Device_Name", expected: CharacteristicDeviceName},
		{input: " model-number ", expected: CharacteristicModelNumber},
		{input: "unknown", wantErr: true},
		{input: "battery", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, err := ParseCharacteristic(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c)
		})
	}
}

func TestReadableCharacteristics(t *testing.T) {
	readable := ReadableCharacteristics()

	assert.Len(t, readable, 7)
	for _, c := range readable {
		assert.True(t, c.Readable(), "%s MUST be readable", c)
	}
	assert.False(t, CharacteristicQuickDrive.Readable())
	assert.False(t, CharacteristicUnknown.Readable())
}
