package pru

import (
	"fmt"
	"os"
	"path/filepath"
)

// Firmware binaries.
const (
	MasterFirmware = "pru-spi-master.bin"
	SlaveFirmware  = "pru-spi-slave.bin"
)

// FirmwareDirs are the directories searched by LocateFirmware.
var FirmwareDirs = []string{
	"/root/spi-duplex/",
	"/opt/pru-firmware/",
	"/lib/firmware/pru-spi/",
	"/usr/local/bin/spi-duplex/",
}

// Memory layout of a PRU subsystem.
const (
	DataRAMSize   = 8192
	SharedRAMSize = 4096
	InstrRAMSize  = 8192
	// ContextOffset is where the Context is placed in PRU data RAM.
	ContextOffset = 0
)

// Events raised by the PRUs towards the host.
const (
	PRU0HostEvent = 19
	PRU1HostEvent = 20
)

// PinSet names the header pins of one SPI side.
type PinSet struct {
	CS   string
	MOSI string
	MISO string
	SCK  string
}

// Pin assignments of the bit-banged SPI overlay. The master runs on PRU0,
// the slave on PRU1.
var (
	MasterPins = PinSet{CS: "P9_27", MOSI: "P8_11", MISO: "P8_15", SCK: "P8_12"}
	SlavePins  = PinSet{CS: "P8_44", MOSI: "P8_45", MISO: "P8_43", SCK: "P8_46"}
)

// Overlay is the device tree overlay enabling the pins above.
const Overlay = "BB-PRU-BITB-SPI-00A0"

// LocateFirmware returns the first directory containing both firmware
// binaries. FirmwareDirs is searched when dirs is empty.
func LocateFirmware(dirs ...string) (string, error) {
	if len(dirs) == 0 {
		dirs = FirmwareDirs
	}
	for _, dir := range dirs {
		if isFile(filepath.Join(dir, MasterFirmware)) && isFile(filepath.Join(dir, SlaveFirmware)) {
			return dir, nil
		}
	}
	return "", unavailable("firmware not found in %v", dirs)
}

// FirmwarePath resolves name inside dir, or inside the located firmware
// directory when dir is empty.
func FirmwarePath(dir, name string) (string, error) {
	if dir == "" {
		located, err := LocateFirmware()
		if err != nil {
			return "", err
		}
		dir = located
	}
	fn := filepath.Join(dir, name)
	if !isFile(fn) {
		return "", unavailable("firmware %s missing", fn)
	}
	return fn, nil
}

func isFile(fn string) bool {
	info, err := os.Stat(fn)
	return err == nil && info.Mode().IsRegular()
}

func fileError(op, fn string, err error) error {
	if os.IsNotExist(err) || os.IsPermission(err) {
		return unavailable("%s %s: %v", op, fn, err)
	}
	return fmt.Errorf("%s %s: %w", op, fn, err)
}
