package duplex

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/robotalks/pruspi.go/pkg/frame"
	"github.com/robotalks/pruspi.go/pkg/pru"
)

// Config defines the demo exchanges.
type Config struct {
	Iterations int
	// Length is the size of every transfer in bytes.
	Length  uint32
	Pause   time.Duration
	Timeout time.Duration
}

var defaultConfig = Config{
	Iterations: 5,
	Length:     0x200,
	Pause:      100 * time.Millisecond,
	Timeout:    100 * time.Millisecond,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.Iterations, "iterations", defaultConfig.Iterations, "Number of exchanges")
	flag.Func("length", fmt.Sprintf("Bytes per transfer (default %d)", defaultConfig.Length), func(val string) error {
		n, err := strconv.ParseUint(val, 0, 32)
		if err != nil {
			return err
		}
		defaultConfig.Length = uint32(n)
		return nil
	})
	flag.DurationVar(&defaultConfig.Pause, "pause", defaultConfig.Pause, "Pause between exchanges")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Timeout waiting for a transfer")
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

// Validate checks the length fits a frame and a buffer.
func (c *Config) Validate() error {
	if c.Length < frame.HeaderSize || c.Length > pru.BufferSize {
		return fmt.Errorf("length %d out of range [%d, %d]", c.Length, frame.HeaderSize, pru.BufferSize)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("negative iterations %d", c.Iterations)
	}
	return nil
}
