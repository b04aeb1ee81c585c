package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/opsboard/realtime/internal/connection"
	"github.com/opsboard/realtime/internal/event"
	"github.com/opsboard/realtime/internal/notify"
)

var errDialRefused = errors.New("dial: connection refused")

// fakeTransport is an in-memory connection.Transport.
type fakeTransport struct {
	connect func(ctx context.Context) error

	messages chan connection.Frame
	errs     chan error

	mu        sync.Mutex
	sent      [][]byte
	connected bool
	closed    bool
}

func newFakeTransport(connect func(ctx context.Context) error) *fakeTransport {
	return &fakeTransport{
		connect:  connect,
		messages: make(chan connection.Frame, 64),
		errs:     make(chan error, 1),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	var err error
	if f.connect != nil {
		err = f.connect(ctx)
	}
	f.mu.Lock()
	f.connected = err == nil && !f.closed
	f.mu.Unlock()
	return err
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return connection.ErrNotConnected
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Messages() <-chan connection.Frame { return f.messages }
func (f *fakeTransport) Errors() <-chan error              { return f.errs }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// sentNames returns the event names of every frame written so far.
func (f *fakeTransport) sentNames() []event.Name {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]event.Name, 0, len(f.sent))
	for _, frame := range f.sent {
		env, err := event.DecodeEnvelope(frame)
		if err != nil {
			continue
		}
		names = append(names, env.Event)
	}
	return names
}

// emit pushes a server frame with the given name and payload.
func (f *fakeTransport) emit(t *testing.T, name event.Name, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := event.Encode(event.Raw{Name: name, Data: data})
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	f.emitRaw(frame)
}

func (f *fakeTransport) emitRaw(frame []byte) {
	f.messages <- connection.Frame{Data: frame, ReceivedAt: time.Now()}
}

// fakeFactory hands out fakeTransports and remembers them.
type fakeFactory struct {
	mu      sync.Mutex
	connect func(ctx context.Context) error
	created []*fakeTransport
}

func (f *fakeFactory) New() connection.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()

	tr := newFakeTransport(f.connect)
	f.created = append(f.created, tr)
	return tr
}

// setConnect changes the dial behaviour of transports created from now on.
func (f *fakeFactory) setConnect(fn func(ctx context.Context) error) {
	f.mu.Lock()
	f.connect = fn
	f.mu.Unlock()
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func refuse(context.Context) error { return errDialRefused }

// fakeClock records timers and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			n++
		}
	}
	return n
}

// delays returns the delay of every timer ever scheduled.
func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]time.Duration, len(c.timers))
	for i, timer := range c.timers {
		out[i] = timer.delay
	}
	return out
}

// fire runs the oldest pending timer.
func (c *fakeClock) fire(t *testing.T) {
	t.Helper()

	c.mu.Lock()
	var next *fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			next = timer
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	c.mu.Unlock()

	if next == nil {
		t.Fatal("no pending timer to fire")
	}
	next.fn()
}

type testEnv struct {
	client   *Client
	factory  *fakeFactory
	clock    *fakeClock
	notified *notify.Recorder
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		factory:  &fakeFactory{},
		clock:    &fakeClock{},
		notified: notify.NewRecorder(100),
	}
	env.client = NewClient(cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotifier(env.notified),
		WithClock(env.clock),
		WithTransportFactory(env.factory.New),
	)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		env.client.Stop(ctx)
	})

	return env
}

func testClientConfig() Config {
	return DefaultConfig()
}

// flush waits until every closure posted before the call has run.
func flush(t *testing.T, c *Client) {
	t.Helper()

	done := make(chan struct{})
	if !c.post(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch goroutine did not drain")
	}
}

// waitFor polls cond, flushing the mailbox between checks.
func waitFor(t *testing.T, c *Client, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		flush(t, c)
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	waitFor(t, c, "state "+want.String(), func() bool { return c.State() == want })
}

func containsName(names []event.Name, want event.Name) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func countName(names []event.Name, want event.Name) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}
