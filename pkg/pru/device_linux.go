//go:build linux

package pru

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// Device is a Transport backed by PRU firmware. The Context is overlaid
// at the start of the mapped data RAM, followed by the Mailbox.
//
// A transfer handed to the firmware can't be recalled: closing the device
// while armed leaves the firmware to finish on its own.
type Device struct {
	config   DeviceConfig
	fd       int
	mem      []byte
	ctx      *Context
	mailbox  *Mailbox
	doorbell uint32
	armed    bool
	closed   bool
}

var mailboxSize = int(unsafe.Sizeof(Mailbox{}))

// OpenDevice loads the firmware if configured and maps the data RAM.
func OpenDevice(config DeviceConfig) (*Device, error) {
	if config.RemoteProc != "" && config.Firmware != "" {
		if err := loadFirmware(config.RemoteProc, config.Firmware); err != nil {
			return nil, err
		}
	}
	fd, err := unix.Open(config.UIO, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fileError("open", config.UIO, err)
	}
	size := ContextOffset + ContextSize + mailboxSize
	mem, err := unix.Mmap(fd, int64(config.MapIndex*os.Getpagesize()), DataRAMSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, unavailable("mmap %s: %v", config, err)
	}
	if len(mem) < size {
		unix.Munmap(mem)
		unix.Close(fd)
		return nil, unavailable("data RAM of %s too small: %d", config, len(mem))
	}
	ctx, err := ContextAt(mem[ContextOffset:])
	if err != nil {
		unix.Munmap(mem)
		unix.Close(fd)
		return nil, unavailable("%s: %v", config, err)
	}
	d := &Device{
		config:  config,
		fd:      fd,
		mem:     mem,
		ctx:     ctx,
		mailbox: (*Mailbox)(unsafe.Pointer(&mem[ContextOffset+ContextSize])),
	}
	ctx.Reset()
	d.doorbell = atomic.LoadUint32(&d.mailbox.Ack)
	atomic.StoreUint32(&d.mailbox.Doorbell, d.doorbell)
	glog.Infof("PRU device %s mapped", config)
	return d, nil
}

// Context implements Transport.
func (d *Device) Context() *Context {
	return d.ctx
}

// Arm implements Transport. The Context already carries the buffer index
// and lengths, so ringing the doorbell is all it takes.
func (d *Device) Arm(index int, length, maxLength uint32) error {
	if d.closed {
		return ErrClosed
	}
	d.doorbell++
	d.armed = true
	atomic.StoreUint32(&d.mailbox.Doorbell, d.doorbell)
	return nil
}

// Poll implements Transport.
func (d *Device) Poll() (uint32, bool, error) {
	if d.closed {
		return 0, false, ErrClosed
	}
	if !d.armed || atomic.LoadUint32(&d.mailbox.Ack) != d.doorbell {
		return 0, false, nil
	}
	d.armed = false
	n := atomic.LoadUint32(&d.mailbox.Count)
	if code := atomic.LoadUint32(&d.mailbox.Status); code != 0 {
		return 0, false, &DeviceError{Code: code}
	}
	return n, true, nil
}

// Close implements Transport.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.armed {
		glog.Warningf("PRU device %s closed with a transfer in flight", d.config)
	}
	d.ctx, d.mailbox = nil, nil
	err := unix.Munmap(d.mem)
	if e := unix.Close(d.fd); err == nil {
		err = e
	}
	return err
}

func loadFirmware(remoteProc, firmware string) error {
	fn, err := FirmwarePath(filepath.Dir(firmware), filepath.Base(firmware))
	if err != nil {
		return err
	}
	state := filepath.Join(remoteProc, "state")
	if err := writeSysfs(state, "stop"); err != nil {
		glog.V(2).Infof("stop %s: %v", remoteProc, err)
	}
	if err := writeSysfs(filepath.Join(remoteProc, "firmware"), firmwareName(fn)); err != nil {
		return err
	}
	if err := writeSysfs(state, "start"); err != nil {
		return err
	}
	glog.Infof("firmware %s started on %s", fn, remoteProc)
	return nil
}

func writeSysfs(fn, val string) error {
	if err := os.WriteFile(fn, []byte(val), 0644); err != nil {
		return fileError("write", fn, err)
	}
	return nil
}
