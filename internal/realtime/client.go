package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opsboard/realtime/internal/connection"
	"github.com/opsboard/realtime/internal/event"
	"github.com/opsboard/realtime/internal/notify"
	"github.com/opsboard/realtime/internal/queue"
)

// Handler receives events for one subscription. Handlers run on the
// dispatch goroutine and are never invoked concurrently with each other.
type Handler func(event.Event)

// Subscription is the handle returned by Subscribe. Each call to Subscribe
// yields a distinct handle, even for the same handler.
type Subscription struct {
	id      uuid.UUID
	name    event.Name
	handler Handler
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Name returns the event name the subscription listens to.
func (s *Subscription) Name() event.Name { return s.name }

// Stats provides statistics about the client.
type Stats struct {
	State           State
	Attempts        int
	Subscriptions   map[event.Name]int
	Connects        int64
	ConnectFailures int64
	FramesReceived  int64
	Delivered       int64 // Handler invocations
	Unmatched       int64 // Frames with no subscriber for their event name
	Dropped         int64 // Malformed frames and frames from superseded transports
	HandlerPanics   int64
}

// Client is the Realtime Event Client. Construct one per process in the
// composition root and pass it to consumers.
type Client struct {
	cfg          Config
	backoff      Backoff
	logger       *slog.Logger
	notifier     notify.Notifier
	clock        Clock
	newTransport TransportFactory

	mailbox  *queue.Queue[func()]
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once

	// Owned by the dispatch goroutine.
	state      State
	transport  connection.Transport
	pumpStop   chan struct{}
	generation uint64
	attempts   int
	timer      Timer
	timerSeq   uint64
	subs       map[event.Name][]*Subscription

	// Written by the dispatch goroutine, read by Stats.
	statsMu sync.Mutex
	stats   Stats
}

// NewClient creates a Client and starts its dispatch goroutine.
// No connection is opened until the first Subscribe.
func NewClient(cfg Config, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		cfg: cfg,
		backoff: Backoff{
			Base: cfg.ReconnectBaseDelay,
			Cap:  cfg.ReconnectMaxDelay,
		},
		logger:   slog.Default(),
		notifier: notify.Discard,
		clock:    realClock{},
		mailbox:  queue.New[func()](64),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
		subs:     make(map[event.Name][]*Subscription),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("component", "realtime")
	if c.newTransport == nil {
		transportLogger := c.logger.With("url", cfg.Transport.URL)
		c.newTransport = func() connection.Transport {
			return connection.NewTransport(cfg.Transport, transportLogger)
		}
	}
	c.stats.Subscriptions = make(map[event.Name]int)

	go c.loop()

	return c
}

// Subscribe registers handler for events tagged name and returns its handle.
// If no connection exists or is in progress, it starts one. Subscribe never
// blocks on the network and never fails; an empty name or nil handler is
// ignored and yields nil, as does any call made after Stop.
func (c *Client) Subscribe(name event.Name, handler Handler) *Subscription {
	if name == "" || handler == nil {
		c.logger.Debug("ignoring invalid subscription", "event", name)
		return nil
	}

	sub := &Subscription{
		id:      uuid.New(),
		name:    name,
		handler: handler,
	}
	if !c.post(func() { c.addSubscription(sub) }) {
		return nil
	}
	return sub
}

// Unsubscribe removes exactly the registration identified by sub.
// Unknown or nil handles are ignored. The connection stays open.
func (c *Client) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	c.post(func() { c.removeSubscription(sub) })
}

// Disconnect closes the transport, cancels any pending reconnect and clears
// every subscription. The client remains usable: the next Subscribe reconnects.
func (c *Client) Disconnect() {
	c.post(c.teardown)
}

// Stop disconnects and terminates the dispatch goroutine. Calls made after
// Stop are ignored.
func (c *Client) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info("stopping realtime client")
		c.post(func() {
			c.teardown()
			c.mailbox.Close()
		})
		c.cancel()
	})

	select {
	case <-c.loopDone:
		c.logger.Info("realtime client stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("realtime client stop timed out")
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats.State
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	s := c.stats
	s.Subscriptions = make(map[event.Name]int, len(c.stats.Subscriptions))
	for name, n := range c.stats.Subscriptions {
		s.Subscriptions[name] = n
	}
	return s
}

// post enqueues fn for the dispatch goroutine. Returns false after Stop.
func (c *Client) post(fn func()) bool {
	return c.mailbox.Push(fn)
}

// loop is the dispatch goroutine.
func (c *Client) loop() {
	defer close(c.loopDone)

	for {
		fn, ok := c.mailbox.Pop()
		if !ok {
			return
		}
		fn()
	}
}

func (c *Client) updateStats(fn func(s *Stats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}
