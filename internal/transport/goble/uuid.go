package goble

import (
	"strings"

	"github.com/srg/brickd/internal/command"
)

const (
	// RemoteControlServiceUUID is the SBrick remote control service
	RemoteControlServiceUUID = "4dc591b0-857c-41de-b5f1-15abda665b0c"

	RemoteControlCharUUID = "02b8cbcc-0e25-4bda-8790-a15f53e6010f"
	QuickDriveCharUUID    = "489a6ae0-c1ab-4c9c-bdb2-11d373c1b7fb"
)

// bluetooth SIG base UUID suffix, 0000xxxx-0000-1000-8000-00805f9b34fb
const sigBaseSuffix = "00001000800000805f9b34fb"

// characteristicUUIDs maps every characteristic to its normalized UUID
var characteristicUUIDs = map[command.Characteristic]string{
	command.CharacteristicDeviceName:       "2a00",
	command.CharacteristicAppearance:       "2a01",
	command.CharacteristicModelNumber:      "2a24",
	command.CharacteristicFirmwareRevision: "2a26",
	command.CharacteristicHardwareRevision: "2a27",
	command.CharacteristicSoftwareRevision: "2a28",
	command.CharacteristicManufacturerName: "2a29",
	command.CharacteristicRemoteControl:    NormalizeUUID(RemoteControlCharUUID),
	command.CharacteristicQuickDrive:       NormalizeUUID(QuickDriveCharUUID),
}

// NormalizeUUID converts a UUID to lowercase without dashes or 0x prefix.
// 128-bit UUIDs built on the Bluetooth SIG base collapse to their 16-bit form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// characteristicFor resolves a discovered characteristic UUID
func characteristicFor(uuid string) (command.Characteristic, bool) {
	n := NormalizeUUID(uuid)
	for c, u := range characteristicUUIDs {
		if u == n {
			return c, true
		}
	}
	return command.CharacteristicUnknown, false
}
