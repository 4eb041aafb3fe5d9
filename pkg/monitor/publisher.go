package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/pruspi.go/pkg/monitor/mqtt"
	"github.com/robotalks/pruspi.go/pkg/spi"
)

// Watched is a controller observed by the monitor.
type Watched interface {
	Role() spi.Role
	Status() spi.Status
	Healthy() error
}

type overflowReporter interface {
	LastTransmissionErr() error
}

type outgoing struct {
	topic  string
	msg    proto.Message
	retain bool
}

// Publisher publishes controller events to MQTT. Events are queued
// without blocking and dropped when the queue is full, so a loop
// callback never waits on the broker.
type Publisher struct {
	Queue  *mqtt.Queue
	Device string
	Meta   Meta
	// BackOff creates the retry policy for connecting to the broker.
	BackOff func() backoff.BackOff

	events  chan outgoing
	dropped atomic.Uint64
}

// NewPublisher creates a Publisher.
func NewPublisher(q *mqtt.Queue, device string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1
	}
	p := &Publisher{
		Queue:   q,
		Device:  device,
		Meta:    Meta{Device: device},
		BackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		events:  make(chan outgoing, queueSize),
	}
	q.OnConnect = func(*mqtt.Queue) { p.publishMeta() }
	return p
}

// Dropped returns the number of events dropped because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Watch returns a callback publishing a TransferEvent for every completed
// transfer of c before calling next.
func (p *Publisher) Watch(c Watched, next spi.Callback) spi.Callback {
	role := c.Role().String()
	p.Meta.Roles = append(p.Meta.Roles, role)
	topic := transferTopic(p.Device, role)
	reporter, _ := c.(overflowReporter)
	return func() {
		s := c.Status()
		ev := &TransferEvent{
			Device:      p.Device,
			Role:        role,
			Count:       s.Transfers,
			Length:      s.LastLength,
			BufferIndex: uint32(s.BufferIndex),
			Timestamp:   time.Now().UnixNano(),
		}
		if reporter != nil {
			ev.Overflow = errors.Is(reporter.LastTransmissionErr(), spi.ErrReceptionOverflow)
		}
		p.enqueue(outgoing{topic: topic, msg: ev})
		if next != nil {
			next()
		}
	}
}

// Report publishes the current lifecycle state of c.
func (p *Publisher) Report(c Watched) {
	s := c.Status()
	ev := &StatusEvent{
		Device:    p.Device,
		Role:      s.Role.String(),
		State:     s.State.String(),
		Transfers: s.Transfers,
		Timestamp: time.Now().UnixNano(),
	}
	if s.Err != nil {
		ev.Error = s.Err.Error()
	}
	p.enqueue(outgoing{topic: statusTopic(p.Device, ev.Role), msg: ev, retain: true})
}

func (p *Publisher) enqueue(ev outgoing) {
	select {
	case p.events <- ev:
	default:
		if p.dropped.Add(1)%100 == 1 {
			glog.Warningf("event queue full, %d events dropped", p.dropped.Load())
		}
	}
}

// Run implements framework.Runnable. It connects to the broker, retrying
// with back off, and publishes queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	connect := func() error {
		token := p.Queue.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			glog.Warningf("MQTT connect: %v", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(connect, backoff.WithContext(p.BackOff(), ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer p.Queue.Close()
	// OnConnect republishes on reconnect.
	p.publishMeta()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.Queue.PubWith(metaTopic(p.Device), nil, 1, true).Wait()
			return nil
		case ev := <-p.events:
			p.publish(ev)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.events:
			p.publish(ev)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ev outgoing) {
	payload, err := proto.Marshal(ev.msg)
	if err != nil {
		glog.Errorf("encode %T: %v", ev.msg, err)
		return
	}
	var qos byte
	if ev.retain {
		qos = 1
	}
	p.Queue.PubWith(ev.topic, payload, qos, ev.retain)
}

func (p *Publisher) publishMeta() {
	meta, err := json.Marshal(&p.Meta)
	if err != nil {
		glog.Errorf("encode meta: %v", err)
		return
	}
	p.Queue.PubWith(metaTopic(p.Device), meta, 1, true)
}
