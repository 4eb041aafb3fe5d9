package duplex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/pruspi.go/pkg/frame"
	"github.com/robotalks/pruspi.go/pkg/pru"
	"github.com/robotalks/pruspi.go/pkg/spi"
)

const testInterval = 100 * time.Microsecond

type simPair [2]*pru.Sim

func pairOf(opts ...pru.SimOption) simPair {
	m, s := pru.NewSimPair(opts...)
	return simPair{m, s}
}

func newTestDemo(t *testing.T, sims simPair) *Demo {
	simMaster, simSlave := sims[0], sims[1]
	master := spi.NewMaster(spi.Config{Interval: testInterval, Opener: func() (pru.Transport, error) { return simMaster, nil }})
	slave := spi.NewSlave(spi.Config{Interval: testInterval, Opener: func() (pru.Transport, error) { return simSlave, nil }})
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	conf := NewConfig()
	conf.Pause = time.Millisecond
	conf.Timeout = time.Second
	return conf.NewDemo(master, slave)
}

func TestConfigValidate(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Validate())
	conf.Length = frame.HeaderSize - 1
	assert.Error(t, conf.Validate())
	conf.Length = pru.BufferSize + 1
	assert.Error(t, conf.Validate())
	conf.Length = pru.BufferSize
	assert.NoError(t, conf.Validate())
}

func TestInts(t *testing.T) {
	assert.Equal(t, 0, Ints(2))
	assert.Equal(t, 0, Ints(frame.HeaderSize))
	assert.Equal(t, 127, Ints(0x200))
}

func TestDemoRun(t *testing.T) {
	d := newTestDemo(t, pairOf(pru.WithDelay(5*time.Millisecond)))
	var masterCalls, slaveCalls int
	d.MasterCallback = func() { masterCalls++ }
	d.SlaveCallback = func() { slaveCalls++ }
	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, Stats{Iterations: 5, Verified: 5}, d.Stats)
	assert.EqualValues(t, 5, d.Master.Transfers())
	assert.EqualValues(t, 5, d.Slave.Transfers())
	assert.Equal(t, 5, masterCalls)
	assert.Equal(t, 5, slaveCalls)
	assert.EqualValues(t, 5, d.slaveTracker.Received)
	assert.Zero(t, d.slaveTracker.Gaps)
	assert.Equal(t, spi.StateStopped, d.Master.Status().State)
}

func TestDemoMismatch(t *testing.T) {
	// unlinked transports: nothing crosses the bus and the slave overflows
	d := newTestDemo(t, simPair{pru.NewSim(), pru.NewSim(pru.WithReceivedLength(0x300))})
	d.Iterations = 2
	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, Stats{Iterations: 2, Mismatches: 2}, d.Stats)
	assert.ErrorIs(t, d.Slave.LastTransmissionErr(), spi.ErrReceptionOverflow)
}

func TestDemoCanceled(t *testing.T) {
	d := newTestDemo(t, pairOf())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Zero(t, d.Stats.Iterations)
}

func TestDemoInitFailure(t *testing.T) {
	master := spi.NewMaster(spi.Config{Interval: testInterval})
	slave := spi.NewSlave(spi.Config{Interval: testInterval})
	d := NewConfig().NewDemo(master, slave)
	err := d.Run(context.Background())
	assert.ErrorIs(t, err, spi.ErrTransportUnavailable)
}
