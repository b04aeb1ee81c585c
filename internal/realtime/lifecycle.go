package realtime

import (
	"errors"
	"fmt"

	"github.com/opsboard/realtime/internal/connection"
	"github.com/opsboard/realtime/internal/event"
	"github.com/opsboard/realtime/internal/notify"
)

// Everything in this file runs on the dispatch goroutine.

func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", "from", c.state, "to", s)
	c.state = s
	c.updateStats(func(st *Stats) {
		st.State = s
		st.Attempts = c.attempts
	})
}

func (c *Client) setAttempts(n int) {
	c.attempts = n
	c.updateStats(func(st *Stats) { st.Attempts = n })
}

func (c *Client) addSubscription(sub *Subscription) {
	c.subs[sub.name] = append(c.subs[sub.name], sub)
	c.updateStats(func(st *Stats) { st.Subscriptions[sub.name]++ })

	c.logger.Debug("subscribed", "event", sub.name, "subscription", sub.id)

	switch c.state {
	case StateIdle:
		c.connect()
	case StateDisconnected:
		// Connect now instead of waiting out the backoff. The attempt
		// count carries over.
		c.cancelTimer()
		c.connect()
	case StateGaveUp:
		c.logger.Info("subscription restarts reconnection cycle")
		c.setAttempts(0)
		c.connect()
	case StateConnected:
		// New subscribers should not wait for the next push cycle.
		switch sub.name {
		case event.MetricsUpdate:
			c.request(event.RequestMetrics)
		case event.ServiceHealth:
			c.request(event.RequestServiceHealth)
		}
	}
}

func (c *Client) removeSubscription(sub *Subscription) {
	list := c.subs[sub.name]
	for i, s := range list {
		if s != sub {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(c.subs, sub.name)
		} else {
			c.subs[sub.name] = list
		}
		c.updateStats(func(st *Stats) {
			st.Subscriptions[sub.name]--
			if st.Subscriptions[sub.name] == 0 {
				delete(st.Subscriptions, sub.name)
			}
		})
		c.logger.Debug("unsubscribed", "event", sub.name, "subscription", sub.id)
		return
	}
}

// teardown implements Disconnect.
func (c *Client) teardown() {
	c.cancelTimer()
	c.discardTransport()
	c.generation++

	c.subs = make(map[event.Name][]*Subscription)
	c.updateStats(func(st *Stats) { st.Subscriptions = make(map[event.Name]int) })

	c.setAttempts(0)
	c.setState(StateIdle)
	c.logger.Info("disconnected")
}

// connect opens a new transport unless one is already connecting or connected.
func (c *Client) connect() {
	if c.state == StateConnecting || c.state == StateConnected {
		return
	}

	c.discardTransport()
	c.generation++
	gen := c.generation

	tr := c.newTransport()
	c.transport = tr
	c.setState(StateConnecting)

	c.logger.Info("connecting",
		"attempt", c.attempts,
		"max_attempts", c.cfg.MaxReconnectAttempts,
	)

	go func() {
		err := tr.Connect(c.ctx)
		if !c.post(func() { c.handleConnectResult(gen, tr, err) }) {
			tr.Close()
		}
	}()
}

func (c *Client) handleConnectResult(gen uint64, tr connection.Transport, err error) {
	if gen != c.generation {
		// Superseded by Disconnect or a newer attempt.
		tr.Close()
		return
	}

	if err != nil {
		c.logger.Warn("connection failed", "error", err, "attempt", c.attempts)
		c.updateStats(func(st *Stats) { st.ConnectFailures++ })
		c.discardTransport()
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return
	}

	c.cancelTimer()
	c.setAttempts(0)
	c.setState(StateConnected)
	c.updateStats(func(st *Stats) { st.Connects++ })
	c.startPump(gen, tr)

	c.logger.Info("connected")

	c.request(event.RequestMetrics)
	c.request(event.RequestServiceHealth)

	c.notifier.Notify(notify.New(notify.LevelInfo,
		"Connected to monitoring service",
		"Real-time updates enabled",
	))
}

func (c *Client) handleTransportError(gen uint64, err error) {
	if gen != c.generation {
		return
	}

	c.logger.Warn("connection lost", "error", err)
	c.discardTransport()
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer, or gives up once the
// attempt budget for this cycle is spent.
func (c *Client) scheduleReconnect() {
	c.cancelTimer()

	limit := c.cfg.MaxReconnectAttempts
	if limit > 0 && c.attempts >= limit {
		c.setState(StateGaveUp)
		c.logger.Error("giving up reconnection", "attempts", c.attempts)

		n := notify.New(notify.LevelError,
			"Connection Error",
			"Failed to connect to monitoring service. Please refresh the page.",
		)
		n.Persistent = true
		c.notifier.Notify(n)
		return
	}

	c.setAttempts(c.attempts + 1)
	delay := c.backoff.Delay(c.attempts)

	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(delay, func() {
		c.post(func() { c.fireReconnect(seq) })
	})

	c.logger.Info("scheduling reconnect",
		"attempt", c.attempts,
		"max_attempts", limit,
		"delay", delay,
	)

	if c.attempts > 1 {
		desc := fmt.Sprintf("Attempt %d of %d", c.attempts, limit)
		if limit == 0 {
			desc = fmt.Sprintf("Attempt %d", c.attempts)
		}
		c.notifier.Notify(notify.New(notify.LevelWarning, "Reconnecting", desc))
	}
}

func (c *Client) fireReconnect(seq uint64) {
	if c.timer == nil || seq != c.timerSeq {
		return
	}
	c.timer = nil

	c.logger.Info("reconnecting", "attempt", c.attempts)
	c.connect()
}

func (c *Client) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// discardTransport stops the frame pump and closes the current transport.
func (c *Client) discardTransport() {
	if c.pumpStop != nil {
		close(c.pumpStop)
		c.pumpStop = nil
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
}

// startPump forwards frames and the terminal error of tr onto the mailbox.
func (c *Client) startPump(gen uint64, tr connection.Transport) {
	stop := make(chan struct{})
	c.pumpStop = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case frame := <-tr.Messages():
				if !c.post(func() { c.handleFrame(gen, frame) }) {
					return
				}
			case err := <-tr.Errors():
				// Frames read before the failure are still delivered.
			drain:
				for {
					select {
					case frame := <-tr.Messages():
						c.post(func() { c.handleFrame(gen, frame) })
					default:
						break drain
					}
				}
				c.post(func() { c.handleTransportError(gen, err) })
				return
			}
		}
	}()
}

func (c *Client) handleFrame(gen uint64, frame connection.Frame) {
	c.updateStats(func(st *Stats) { st.FramesReceived++ })

	if gen != c.generation {
		c.updateStats(func(st *Stats) { st.Dropped++ })
		return
	}

	e, err := event.Decode(frame.Data)
	if err != nil {
		if errors.Is(err, event.ErrMissingEventName) {
			c.logger.Debug("dropping frame without event name")
		} else {
			c.logger.Warn("dropping malformed frame", "error", err)
		}
		c.updateStats(func(st *Stats) { st.Dropped++ })
		return
	}

	subs := c.subs[e.EventName()]
	if len(subs) == 0 {
		c.updateStats(func(st *Stats) { st.Unmatched++ })
		return
	}

	for _, sub := range subs {
		c.invoke(sub, e)
	}
}

// invoke runs one handler, isolating panics so other subscribers still get the event.
func (c *Client) invoke(sub *Subscription, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panicked",
				"event", sub.name,
				"subscription", sub.id,
				"panic", r,
			)
			c.updateStats(func(st *Stats) { st.HandlerPanics++ })
		}
	}()

	sub.handler(e)
	c.updateStats(func(st *Stats) { st.Delivered++ })
}

// request sends a fire-and-forget snapshot request.
func (c *Client) request(name event.Name) {
	if c.transport == nil {
		return
	}
	frame, err := event.EncodeRequest(name)
	if err != nil {
		c.logger.Warn("encode request", "event", name, "error", err)
		return
	}
	if err := c.transport.Send(frame); err != nil {
		c.logger.Debug("request not sent", "event", name, "error", err)
	}
}
