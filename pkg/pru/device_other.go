//go:build !linux

package pru

// Device is only available on linux.
type Device struct{}

// OpenDevice always fails outside linux.
func OpenDevice(config DeviceConfig) (*Device, error) {
	return nil, unavailable("PRU device %s requires linux", config)
}

// Context implements Transport.
func (d *Device) Context() *Context { return nil }

// Arm implements Transport.
func (d *Device) Arm(int, uint32, uint32) error { return ErrClosed }

// Poll implements Transport.
func (d *Device) Poll() (uint32, bool, error) { return 0, false, ErrClosed }

// Close implements Transport.
func (d *Device) Close() error { return nil }
