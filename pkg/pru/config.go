package pru

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config selects the transports of both sides of the bus.
type Config struct {
	Master      DeviceConfig
	Slave       DeviceConfig
	FirmwareDir string
	// Simulate replaces the devices with a linked pair of simulated
	// transports.
	Simulate bool
	SimDelay time.Duration
}

var defaultConfig = Config{
	Master: DeviceConfig{
		UIO:        "/dev/uio0",
		RemoteProc: "/sys/class/remoteproc/remoteproc1",
	},
	Slave: DeviceConfig{
		UIO:        "/dev/uio1",
		RemoteProc: "/sys/class/remoteproc/remoteproc2",
	},
	SimDelay: time.Millisecond,
}

func init() {
	if val := os.Getenv("PRU_SPI_MASTER_UIO"); val != "" {
		defaultConfig.Master.UIO = val
	}
	if val := os.Getenv("PRU_SPI_SLAVE_UIO"); val != "" {
		defaultConfig.Slave.UIO = val
	}
	if val := os.Getenv("PRU_SPI_FIRMWARE_DIR"); val != "" {
		defaultConfig.FirmwareDir = val
	}
	if val, err := strconv.ParseBool(os.Getenv("PRU_SPI_SIMULATE")); err == nil {
		defaultConfig.Simulate = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Master.UIO, "master-uio", defaultConfig.Master.UIO, "UIO device of the master PRU data RAM")
	flag.IntVar(&defaultConfig.Master.MapIndex, "master-map", defaultConfig.Master.MapIndex, "UIO map index of the master PRU data RAM")
	flag.StringVar(&defaultConfig.Master.RemoteProc, "master-rproc", defaultConfig.Master.RemoteProc, "remoteproc sysfs directory of the master PRU, empty to skip firmware loading")
	flag.StringVar(&defaultConfig.Slave.UIO, "slave-uio", defaultConfig.Slave.UIO, "UIO device of the slave PRU data RAM")
	flag.IntVar(&defaultConfig.Slave.MapIndex, "slave-map", defaultConfig.Slave.MapIndex, "UIO map index of the slave PRU data RAM")
	flag.StringVar(&defaultConfig.Slave.RemoteProc, "slave-rproc", defaultConfig.Slave.RemoteProc, "remoteproc sysfs directory of the slave PRU, empty to skip firmware loading")
	flag.StringVar(&defaultConfig.FirmwareDir, "firmware-dir", defaultConfig.FirmwareDir, "Firmware directory, empty to search the default locations")
	flag.BoolVar(&defaultConfig.Simulate, "simulate", defaultConfig.Simulate, "Use simulated transports")
	flag.DurationVar(&defaultConfig.SimDelay, "sim-delay", defaultConfig.SimDelay, "Duration of a simulated transfer")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Openers returns the transport openers of the master and the slave.
// With Simulate both openers share one simulated pair.
func (c *Config) Openers() (master, slave Opener) {
	if c.Simulate {
		m, s := NewSimPair(WithDelay(c.SimDelay))
		return func() (Transport, error) { return m, nil },
			func() (Transport, error) { return s, nil }
	}
	return c.opener(c.Master, MasterFirmware), c.opener(c.Slave, SlaveFirmware)
}

func (c *Config) opener(dev DeviceConfig, firmware string) Opener {
	return func() (Transport, error) {
		if dev.RemoteProc != "" && dev.Firmware == "" {
			dir := c.FirmwareDir
			if dir == "" {
				located, err := LocateFirmware()
				if err != nil {
					return nil, err
				}
				dir = located
			}
			dev.Firmware = filepath.Join(dir, firmware)
		}
		d, err := OpenDevice(dev)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
