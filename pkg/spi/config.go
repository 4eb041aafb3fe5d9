package spi

import (
	"flag"
	"os"
	"time"

	"github.com/robotalks/pruspi.go/pkg/framework"
	"github.com/robotalks/pruspi.go/pkg/pru"
)

// DefaultInterval is the polling cadence of a controller loop.
const DefaultInterval = 300 * time.Microsecond

// Config defines the configurations for a controller.
type Config struct {
	// Interval is the loop cadence. A stop request is noticed
	// within one Interval unless a callback is slow.
	Interval time.Duration
	// Opener acquires the transport in Init.
	Opener pru.Opener
	// StopSignal is an optional stop signal shared with the orchestrator.
	StopSignal *framework.StopSignal
	// Metrics is optional.
	Metrics *Metrics
}

var defaultConfig = Config{
	Interval: DefaultInterval,
}

func init() {
	if val, err := time.ParseDuration(os.Getenv("PRU_SPI_INTERVAL")); err == nil && val > 0 {
		defaultConfig.Interval = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Polling interval of the controller loops")
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

// NewMaster creates a master controller using the config.
func (c *Config) NewMaster() *Master {
	return NewMaster(*c)
}

// NewSlave creates a slave controller using the config.
func (c *Config) NewSlave() *Slave {
	return NewSlave(*c)
}
