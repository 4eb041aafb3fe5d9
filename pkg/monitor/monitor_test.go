package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/pruspi.go/pkg/monitor/mqtt"
	"github.com/robotalks/pruspi.go/pkg/spi"
)

type token struct {
	err error
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Error() error                   { return t.err }

type message struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	lock      sync.Mutex
	failures  int
	connects  int
	published []message
}

func (c *fakeClient) Connect() paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	if c.connects <= c.failures {
		return &token{err: errors.New("connection refused")}
	}
	return &token{}
}

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.published = append(c.published, message{topic: topic, retain: retained, payload: payload.([]byte)})
	return &token{}
}

func (c *fakeClient) Subscribe(string, byte, paho.MessageHandler) paho.Token { return &token{} }
func (c *fakeClient) Unsubscribe(...string) paho.Token                      { return &token{} }

func (c *fakeClient) messages() []message {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]message(nil), c.published...)
}

type fakeController struct {
	role    spi.Role
	status  spi.Status
	healthy error
	lastErr error
}

func (c *fakeController) Role() spi.Role             { return c.role }
func (c *fakeController) Status() spi.Status         { return c.status }
func (c *fakeController) Healthy() error             { return c.healthy }
func (c *fakeController) LastTransmissionErr() error { return c.lastErr }

func newTestPublisher(client *fakeClient, queueSize int) *Publisher {
	p := NewPublisher(&mqtt.Queue{Client: client, TopicPrefix: "pru/"}, "board", queueSize)
	p.BackOff = func() backoff.BackOff { return &backoff.ConstantBackOff{Interval: time.Millisecond} }
	return p
}

func TestParseTopic(t *testing.T) {
	device, role, kind, ok := ParseTopic(transferTopic("board", "slave"))
	assert.True(t, ok)
	assert.Equal(t, "board", device)
	assert.Equal(t, "slave", role)
	assert.Equal(t, "transfer", kind)

	device, role, kind, ok = ParseTopic(metaTopic("board"))
	assert.True(t, ok)
	assert.Equal(t, "board", device)
	assert.Empty(t, role)
	assert.Equal(t, "meta", kind)

	_, _, _, ok = ParseTopic("board/other")
	assert.False(t, ok)
	_, _, _, ok = ParseTopic("a/b/c/d")
	assert.False(t, ok)
}

func TestPublisherRun(t *testing.T) {
	client := &fakeClient{failures: 2}
	p := newTestPublisher(client, 8)
	slave := &fakeController{
		role:    spi.RoleSlave,
		status:  spi.Status{Role: spi.RoleSlave, State: spi.StateRunning, Transfers: 1, LastLength: 300, BufferIndex: 1},
		lastErr: &spi.OverflowError{Received: 300, Max: 256},
	}
	called := 0
	cb := p.Watch(slave, func() { called++ })
	cb()
	assert.Equal(t, 1, called)
	p.Report(slave)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return len(client.messages()) >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msgs := client.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, 3, client.connects)

	assert.Equal(t, "pru/board/meta", msgs[0].topic)
	assert.True(t, msgs[0].retain)
	var meta Meta
	require.NoError(t, json.Unmarshal(msgs[0].payload, &meta))
	assert.Equal(t, "board", meta.Device)
	assert.Equal(t, []string{"slave"}, meta.Roles)

	assert.Equal(t, "pru/board/slave/transfer", msgs[1].topic)
	var ev TransferEvent
	require.NoError(t, proto.Unmarshal(msgs[1].payload, &ev))
	assert.Equal(t, "slave", ev.Role)
	assert.EqualValues(t, 1, ev.Count)
	assert.EqualValues(t, 300, ev.Length)
	assert.EqualValues(t, 1, ev.BufferIndex)
	assert.True(t, ev.Overflow)

	assert.Equal(t, "pru/board/slave/status", msgs[2].topic)
	assert.True(t, msgs[2].retain)
	var st StatusEvent
	require.NoError(t, proto.Unmarshal(msgs[2].payload, &st))
	assert.Equal(t, "running", st.State)
	assert.Empty(t, st.Error)

	assert.Equal(t, "pru/board/meta", msgs[3].topic)
	assert.Empty(t, msgs[3].payload)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client, 2)
	cb := p.Watch(&fakeController{role: spi.RoleMaster}, nil)
	for i := 0; i < 5; i++ {
		cb()
	}
	assert.EqualValues(t, 3, p.Dropped())
	assert.Empty(t, client.messages())
}

func TestPublisherCanceledBeforeConnect(t *testing.T) {
	client := &fakeClient{failures: 1 << 30}
	p := newTestPublisher(client, 1)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.messages())
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	metrics := spi.NewMetrics("pruspi").MustRegister(reg)
	metrics.Transfers.WithLabelValues("master").Add(3)

	master := &fakeController{role: spi.RoleMaster}
	slave := &fakeController{role: spi.RoleSlave, healthy: spi.ErrNotStarted}
	h := NewHandler(reg, master, slave)

	code, _ := get(t, h, "/live")
	assert.Equal(t, http.StatusOK, code)
	code, body := get(t, h, "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "slave")

	slave.healthy = nil
	code, _ = get(t, h, "/ready")
	assert.Equal(t, http.StatusOK, code)

	master.status.Err = errors.New("device gone")
	code, _ = get(t, h, "/live")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, `pruspi_spi_transfers_total{role="master"} 3`), body)
}

func TestServer(t *testing.T) {
	s := &Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	require.NoError(t, s.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	resp, err := http.Get("http://" + s.Addr + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("server not stopped")
	}
}
