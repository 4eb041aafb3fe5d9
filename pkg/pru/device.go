package pru

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Mailbox follows the Context in PRU data RAM. The host rings Doorbell
// with a new sequence number once a transfer is published in the Context;
// the firmware copies it into Ack after storing Count and Status.
type Mailbox struct {
	Doorbell uint32
	Ack      uint32
	Count    uint32
	Status   uint32
}

// DeviceConfig locates the PRU owning one side of the bus.
type DeviceConfig struct {
	// UIO is the uio device exposing the PRU data RAM, e.g. /dev/uio0.
	UIO string
	// MapIndex selects the uio memory map of the data RAM.
	MapIndex int
	// RemoteProc is the sysfs directory of the PRU core,
	// e.g. /sys/class/remoteproc/remoteproc1. Firmware is only
	// (re)loaded when both RemoteProc and Firmware are set.
	RemoteProc string
	// Firmware is the path of the firmware binary.
	Firmware string
}

const firmwareRoot = "/lib/firmware"

// firmwareName converts a firmware path to the name the kernel loader
// resolves against /lib/firmware.
func firmwareName(fn string) string {
	if rel, err := filepath.Rel(firmwareRoot, fn); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return filepath.Base(fn)
}

// String implements fmt.Stringer.
func (c DeviceConfig) String() string {
	return fmt.Sprintf("%s#%d", c.UIO, c.MapIndex)
}
