package monitor

import (
	"flag"
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/pruspi.go/pkg/monitor/mqtt"
)

// Config defines the monitoring endpoints.
type Config struct {
	// MQTTBrokerURL specifies the MQTT broker to publish events to,
	// e.g. mqtt://host:port/topic-prefix/. Empty disables publishing.
	MQTTBrokerURL string
	// HTTPAddr is the listen address of /metrics, /live and /ready.
	// Empty disables the endpoint.
	HTTPAddr string
	// Device identifies this board in topics.
	Device string
	// QueueSize bounds pending events. Events are dropped when full.
	QueueSize int
}

var defaultConfig = Config{
	QueueSize: 64,
}

func init() {
	if val := os.Getenv("PRU_SPI_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("PRU_SPI_HTTP_ADDR"); val != "" {
		defaultConfig.HTTPAddr = val
	}
	defaultConfig.Device = DeviceID()
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable event publishing")
	flag.StringVar(&defaultConfig.HTTPAddr, "http", defaultConfig.HTTPAddr, "Listen address for metrics and health checks, empty to disable")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Device ID used in topics")
	flag.IntVar(&defaultConfig.QueueSize, "event-queue", defaultConfig.QueueSize, "Maximum pending events")
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

// NewPublisher creates a Publisher from the config, or nil if publishing
// is disabled.
func (c *Config) NewPublisher() (*Publisher, error) {
	if c.MQTTBrokerURL == "" {
		return nil, nil
	}
	if c.Device == "" {
		return nil, fmt.Errorf("device ID must be specified")
	}
	opts, prefix, err := mqtt.ClientOptionsFromURL(c.MQTTBrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT broker URL: %w", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID("pruspi:" + c.Device)
	}
	opts.SetBinaryWill(prefix+metaTopic(c.Device), nil, 1, true)
	return NewPublisher(mqtt.NewQueue(opts, prefix), c.Device, c.QueueSize), nil
}

// DeviceID returns an ID of this machine, stable across reboots and safe
// to expose. The hostname is used when the machine ID isn't available.
func DeviceID() string {
	id, err := machineid.ProtectedID("pruspi")
	if err != nil {
		host, _ := os.Hostname()
		glog.V(2).Infof("machine ID unavailable (%v), using hostname %q", err, host)
		return host
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
