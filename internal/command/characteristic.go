package command

import (
	"fmt"
	"strings"
)

// Characteristic identifies a hub characteristic. The transport resolves it to
// a GATT handle.
type Characteristic int

const (
	CharacteristicUnknown Characteristic = iota
	CharacteristicDeviceName
	CharacteristicAppearance
	CharacteristicModelNumber
	CharacteristicFirmwareRevision
	CharacteristicHardwareRevision
	CharacteristicSoftwareRevision
	CharacteristicManufacturerName

	// write targets
	CharacteristicRemoteControl
	CharacteristicQuickDrive
)

var characteristicNames = map[Characteristic]string{
	CharacteristicUnknown:          "unknown",
	CharacteristicDeviceName:       "device-name",
	CharacteristicAppearance:       "appearance",
	CharacteristicModelNumber:      "model-number",
	CharacteristicFirmwareRevision: "firmware-revision",
	CharacteristicHardwareRevision: "hardware-revision",
	CharacteristicSoftwareRevision: "software-revision",
	CharacteristicManufacturerName: "manufacturer-name",
	CharacteristicRemoteControl:    "remote-control",
	CharacteristicQuickDrive:       "quick-drive",
}

func (c Characteristic) String() string {
	if name, ok := characteristicNames[c]; ok {
		return name
	}
	return fmt.Sprintf("characteristic(%d)", int(c))
}

// Readable reports whether c may be used with NewReadCharacteristic
func (c Characteristic) Readable() bool {
	return c >= CharacteristicDeviceName && c <= CharacteristicManufacturerName
}

// ReadableCharacteristics lists the readable characteristics in declaration order
func ReadableCharacteristics() []Characteristic {
	out := make([]Characteristic, 0, int(CharacteristicManufacturerName))
	for c := CharacteristicDeviceName; c <= CharacteristicManufacturerName; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCharacteristic resolves a characteristic by its name, case-insensitively.
// Underscores are accepted in place of dashes.
func ParseCharacteristic(name string) (Characteristic, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for c, n := range characteristicNames {
		if n == normalized && c != CharacteristicUnknown {
			return c, nil
		}
	}
	return CharacteristicUnknown, fmt.Errorf("unknown characteristic %q", name)
}
