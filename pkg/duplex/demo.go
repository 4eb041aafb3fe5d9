package duplex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pruspi.go/pkg/frame"
	"github.com/robotalks/pruspi.go/pkg/framework"
	"github.com/robotalks/pruspi.go/pkg/spi"
)

// Frame codes.
const (
	CodeRequest byte = 1
	CodeReply   byte = 2
)

// Demo runs a number of full duplex exchanges: the master sends counting
// integers while the slave replies with odd integers, and both sides
// verify what they received.
type Demo struct {
	Master *spi.Master
	Slave  *spi.Slave

	Iterations int
	Length     uint32
	Pause      time.Duration
	Timeout    time.Duration

	// Callbacks are passed to Start.
	MasterCallback spi.Callback
	SlaveCallback  spi.Callback

	Stats Stats

	masterSeq, slaveSeq         *frame.Sender
	masterTracker, slaveTracker frame.Tracker
}

// Stats counts the outcome of exchanges.
type Stats struct {
	Iterations int
	Verified   int
	Mismatches int
}

// NewDemo creates a Demo with the config.
func (c *Config) NewDemo(master *spi.Master, slave *spi.Slave) *Demo {
	return &Demo{
		Master:     master,
		Slave:      slave,
		Iterations: c.Iterations,
		Length:     c.Length,
		Pause:      c.Pause,
		Timeout:    c.Timeout,
		masterSeq:  frame.NewSender(),
		slaveSeq:   frame.NewSender(),
	}
}

// MasterValue is the n-th integer sent by the master.
func MasterValue(n int) uint32 { return uint32(n + 1) }

// SlaveValue is the n-th integer replied by the slave.
func SlaveValue(n int) uint32 { return uint32(n*2 + 1) }

// Run implements framework.Runnable. It initializes and starts both
// controllers, runs the exchanges until done or ctx is canceled, then
// stops both and waits for them.
func (d *Demo) Run(ctx context.Context) (err error) {
	if err := d.Master.Init(); err != nil {
		return err
	}
	if err := d.Slave.Init(); err != nil {
		return err
	}
	if err := d.Master.Start(d.MasterCallback); err != nil {
		return err
	}
	if err := d.Slave.Start(d.SlaveCallback); err != nil {
		d.Master.Stop()
		d.Master.Wait()
		return err
	}
	defer func() {
		d.Master.Stop()
		d.Slave.Stop()
		var errs framework.AggregatedError
		errs.Add(err, d.Master.Wait(), d.Slave.Wait())
		err = errs.Aggregate()
	}()

	glog.Infof("starting %d exchanges of %d bytes", d.Iterations, d.Length)
	for d.Stats.Iterations < d.Iterations {
		if ctx.Err() != nil {
			glog.Info("exchanges interrupted")
			return nil
		}
		d.Stats.Iterations++
		glog.Infof("iteration %d", d.Stats.Iterations)
		if err := d.Exchange(); err != nil {
			if ctx.Err() != nil && errors.Is(err, spi.ErrStopped) {
				glog.Info("exchanges interrupted")
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(d.Pause):
		}
	}
	glog.Infof("exchanges completed: %d verified, %d mismatches", d.Stats.Verified, d.Stats.Mismatches)
	return nil
}

// Exchange runs a single transfer. Verification failures are logged and
// counted; only controller errors are returned.
func (d *Demo) Exchange() error {
	request, err := d.Master.Data()
	if err != nil {
		return err
	}
	reply, err := d.Slave.Data()
	if err != nil {
		return err
	}
	if err := encode(d.masterSeq, request, CodeRequest, d.Length, MasterValue); err != nil {
		return err
	}
	if err := encode(d.slaveSeq, reply, CodeReply, d.Length, SlaveValue); err != nil {
		return err
	}
	if err := d.Slave.EnableReceive(d.Length); err != nil {
		return err
	}
	if err := d.Master.StartTransmission(d.Length); err != nil {
		return err
	}
	glog.V(1).Infof("transmitting %d bytes", d.Length)
	if !d.Slave.WaitForTransmissionToComplete(d.Timeout) {
		return d.failed("slave", fmt.Errorf("transfer not completed within %v", d.Timeout))
	}
	if !d.Master.WaitForTransmissionToComplete(d.Timeout) {
		return d.failed("master", fmt.Errorf("transfer not completed within %v", d.Timeout))
	}
	received := d.Slave.LastTransmissionLength()
	glog.Infof("completed: master sent %d bytes, slave received %d bytes", d.Length, received)

	ok := true
	if received != d.Length {
		glog.Errorf("transmission length mismatch: expected %d, got %d", d.Length, received)
		ok = false
	}
	if err := d.Slave.LastTransmissionErr(); err != nil {
		glog.Errorf("slave: %v", err)
		ok = false
	}
	if data, err := d.Slave.Received(); err != nil {
		return err
	} else if err := verify(&d.slaveTracker, data, CodeRequest, MasterValue); err != nil {
		glog.Errorf("slave received: %v", err)
		ok = false
	}
	if data, err := d.Master.Received(); err != nil {
		return err
	} else if err := verify(&d.masterTracker, data, CodeReply, SlaveValue); err != nil {
		glog.Errorf("master received: %v", err)
		ok = false
	}
	if ok {
		d.Stats.Verified++
		glog.Info("transmission verified")
	} else {
		d.Stats.Mismatches++
	}
	return nil
}

// failed returns the loop failure if the controller exited, otherwise
// counts a mismatch.
func (d *Demo) failed(role string, err error) error {
	for _, c := range []interface{ Healthy() error }{d.Master, d.Slave} {
		if herr := c.Healthy(); herr != nil && herr != spi.ErrNotStarted {
			return herr
		}
	}
	glog.Errorf("%s: %v", role, err)
	d.Stats.Mismatches++
	return nil
}

// Ints returns how many integers fit in a frame of length bytes.
func Ints(length uint32) int {
	if length < frame.HeaderSize {
		return 0
	}
	return int(length-frame.HeaderSize) / 4
}

func encode(s *frame.Sender, buf []byte, code byte, length uint32, value func(int) uint32) error {
	data := make([]byte, Ints(length)*4)
	for n := 0; n*4 < len(data); n++ {
		binary.LittleEndian.PutUint32(data[n*4:], value(n))
	}
	if uint32(len(buf)) < length {
		return &spi.LengthError{Length: length, Capacity: uint32(len(buf))}
	}
	_, err := s.Encode(buf[:length], code, data)
	return err
}

func verify(t *frame.Tracker, buf []byte, code byte, value func(int) uint32) error {
	f, err := frame.Decode(buf)
	if err != nil {
		return err
	}
	if err := t.Check(f.Seq); err != nil {
		return err
	}
	if f.Code != code {
		return fmt.Errorf("unexpected frame code %d", f.Code)
	}
	for n := 0; n*4+4 <= len(f.Data); n++ {
		if got, want := binary.LittleEndian.Uint32(f.Data[n*4:]), value(n); got != want {
			return fmt.Errorf("integer %d: expected %d, got %d", n, want, got)
		}
	}
	return nil
}
