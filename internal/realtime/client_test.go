package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opsboard/realtime/internal/event"
	"github.com/opsboard/realtime/internal/notify"
)

func TestClient_NoConnectionBeforeSubscribe(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	flush(t, env.client)

	if env.factory.count() != 0 {
		t.Errorf("transports created = %d, want 0", env.factory.count())
	}
	if env.client.State() != StateIdle {
		t.Errorf("State() = %v, want idle", env.client.State())
	}
}

func TestClient_SubscribeConnectsAndRequestsSnapshots(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	sub := env.client.Subscribe(event.NewAlert, func(event.Event) {})
	if sub == nil {
		t.Fatal("Subscribe returned nil")
	}
	if sub.Name() != event.NewAlert {
		t.Errorf("Name() = %q, want %q", sub.Name(), event.NewAlert)
	}

	waitForState(t, env.client, StateConnected)

	if env.factory.count() != 1 {
		t.Errorf("transports created = %d, want 1", env.factory.count())
	}

	sent := env.factory.last().sentNames()
	if !containsName(sent, event.RequestMetrics) {
		t.Errorf("sent %v, want request-metrics", sent)
	}
	if !containsName(sent, event.RequestServiceHealth) {
		t.Errorf("sent %v, want request-service-health", sent)
	}

	last, ok := env.notified.Last()
	if !ok || last.Level != notify.LevelInfo || last.Title != "Connected to monitoring service" {
		t.Errorf("last notification = %+v, want connected info", last)
	}

	stats := env.client.Stats()
	if stats.Connects != 1 {
		t.Errorf("Connects = %d, want 1", stats.Connects)
	}
	if stats.Subscriptions[event.NewAlert] != 1 {
		t.Errorf("Subscriptions[new-alert] = %d, want 1", stats.Subscriptions[event.NewAlert])
	}
}

func TestClient_SecondSubscribeReusesConnection(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	env.client.Subscribe(event.PipelineUpdate, func(event.Event) {})
	waitForState(t, env.client, StateConnected)

	env.client.Subscribe(event.AIPrediction, func(event.Event) {})
	flush(t, env.client)

	if env.factory.count() != 1 {
		t.Errorf("transports created = %d, want 1", env.factory.count())
	}
}

func TestClient_InvalidSubscribe(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	if sub := env.client.Subscribe("", func(event.Event) {}); sub != nil {
		t.Error("Subscribe with empty name should return nil")
	}
	if sub := env.client.Subscribe(event.NewAlert, nil); sub != nil {
		t.Error("Subscribe with nil handler should return nil")
	}

	env.client.Unsubscribe(nil)
	flush(t, env.client)

	if env.factory.count() != 0 {
		t.Errorf("transports created = %d, want 0", env.factory.count())
	}
}

func TestClient_DispatchExactlyOnce(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var a, b, alerts atomic.Int32
	env.client.Subscribe(event.MetricsUpdate, func(event.Event) { a.Add(1) })
	env.client.Subscribe(event.MetricsUpdate, func(event.Event) { b.Add(1) })
	env.client.Subscribe(event.NewAlert, func(event.Event) { alerts.Add(1) })
	waitForState(t, env.client, StateConnected)

	env.factory.last().emit(t, event.MetricsUpdate, event.Metrics{
		Resource: event.ResourceMetrics{CPU: 42},
	})
	waitFor(t, env.client, "delivery", func() bool { return a.Load() == 1 && b.Load() == 1 })

	if alerts.Load() != 0 {
		t.Errorf("alert handler invoked %d times, want 0", alerts.Load())
	}
	if got := env.client.Stats().Delivered; got != 2 {
		t.Errorf("Delivered = %d, want 2", got)
	}
}

func TestClient_TypedPayload(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	got := make(chan event.Alert, 1)
	env.client.SubscribeToAlerts(func(a event.Alert) { got <- a })
	waitForState(t, env.client, StateConnected)

	env.factory.last().emit(t, event.NewAlert, event.Alert{
		ID:       "a-1",
		Severity: event.SeverityHigh,
		Title:    "Disk full",
	})

	select {
	case a := <-got:
		if a.ID != "a-1" || a.Severity != event.SeverityHigh || a.Title != "Disk full" {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("typed handler not invoked")
	}
}

func TestClient_TypedWrappers(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	subs := []*Subscription{
		env.client.SubscribeToMetrics(func(event.Metrics) {}),
		env.client.SubscribeToAlerts(func(event.Alert) {}),
		env.client.SubscribeToPipeline(func(event.Pipeline) {}),
		env.client.SubscribeToAnomalies(func(event.Anomaly) {}),
		env.client.SubscribeToAIPredictions(func(event.Prediction) {}),
		env.client.SubscribeToServiceHealth(func(event.Health) {}),
	}
	want := []event.Name{
		event.MetricsUpdate,
		event.NewAlert,
		event.PipelineUpdate,
		event.AnomalyDetected,
		event.AIPrediction,
		event.ServiceHealth,
	}

	for i, sub := range subs {
		if sub == nil {
			t.Fatalf("wrapper %d returned nil", i)
		}
		if sub.Name() != want[i] {
			t.Errorf("wrapper %d subscribed to %q, want %q", i, sub.Name(), want[i])
		}
	}

	if sub := env.client.SubscribeToMetrics(nil); sub != nil {
		t.Error("typed subscribe with nil handler should return nil")
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var kept, removed atomic.Int32
	env.client.Subscribe(event.PipelineUpdate, func(event.Event) { kept.Add(1) })
	sub := env.client.Subscribe(event.PipelineUpdate, func(event.Event) { removed.Add(1) })
	waitForState(t, env.client, StateConnected)

	env.client.Unsubscribe(sub)
	env.factory.last().emit(t, event.PipelineUpdate, event.Pipeline{ID: "p-1"})
	waitFor(t, env.client, "delivery", func() bool { return kept.Load() == 1 })

	if removed.Load() != 0 {
		t.Errorf("unsubscribed handler invoked %d times", removed.Load())
	}
	if env.client.State() != StateConnected {
		t.Errorf("Unsubscribe should not close the connection, state = %v", env.client.State())
	}

	// Removing twice is a no-op.
	env.client.Unsubscribe(sub)
	flush(t, env.client)
	if got := env.client.Stats().Subscriptions[event.PipelineUpdate]; got != 1 {
		t.Errorf("Subscriptions[pipeline-update] = %d, want 1", got)
	}
}

func TestClient_DuplicateRegistration(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var calls atomic.Int32
	handler := func(event.Event) { calls.Add(1) }

	first := env.client.Subscribe(event.AnomalyDetected, handler)
	second := env.client.Subscribe(event.AnomalyDetected, handler)
	if first.ID() == second.ID() {
		t.Fatal("duplicate registrations should have distinct IDs")
	}
	waitForState(t, env.client, StateConnected)

	tr := env.factory.last()
	tr.emit(t, event.AnomalyDetected, event.Anomaly{Metric: "cpu"})
	waitFor(t, env.client, "both registrations", func() bool { return calls.Load() == 2 })

	env.client.Unsubscribe(first)
	tr.emit(t, event.AnomalyDetected, event.Anomaly{Metric: "cpu"})
	waitFor(t, env.client, "remaining registration", func() bool { return calls.Load() == 3 })

	flush(t, env.client)
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_UnmatchedAndMalformedFrames(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var calls atomic.Int32
	env.client.Subscribe(event.NewAlert, func(event.Event) { calls.Add(1) })
	waitForState(t, env.client, StateConnected)

	tr := env.factory.last()
	tr.emitRaw([]byte(`not json`))
	tr.emitRaw([]byte(`{"data":{}}`))
	tr.emitRaw([]byte(`{"event":"new-alert","data":"oops"}`))
	tr.emit(t, "deploy-started", map[string]string{"id": "d-1"})
	tr.emit(t, event.NewAlert, event.Alert{ID: "a-2"})

	waitFor(t, env.client, "valid alert", func() bool { return calls.Load() == 1 })

	stats := env.client.Stats()
	if stats.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", stats.Dropped)
	}
	if stats.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", stats.Unmatched)
	}
	if stats.FramesReceived != 5 {
		t.Errorf("FramesReceived = %d, want 5", stats.FramesReceived)
	}
	if env.client.State() != StateConnected {
		t.Errorf("bad frames should not drop the connection, state = %v", env.client.State())
	}
}

func TestClient_HandlerPanicIsolated(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var after atomic.Int32
	env.client.Subscribe(event.ServiceHealth, func(event.Event) { panic("boom") })
	env.client.Subscribe(event.ServiceHealth, func(event.Event) { after.Add(1) })
	waitForState(t, env.client, StateConnected)

	env.factory.last().emit(t, event.ServiceHealth, event.Health{})
	waitFor(t, env.client, "second handler", func() bool { return after.Load() == 1 })

	if got := env.client.Stats().HandlerPanics; got != 1 {
		t.Errorf("HandlerPanics = %d, want 1", got)
	}
	if env.client.State() != StateConnected {
		t.Errorf("state = %v, want connected", env.client.State())
	}
}

func TestClient_ReentrantCallsFromHandler(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var followUp atomic.Int32
	var self *Subscription
	self = env.client.Subscribe(event.AIPrediction, func(event.Event) {
		env.client.Unsubscribe(self)
		env.client.Subscribe(event.AIPrediction, func(event.Event) { followUp.Add(1) })
		_ = env.client.Stats()
	})
	waitForState(t, env.client, StateConnected)

	tr := env.factory.last()
	tr.emit(t, event.AIPrediction, event.Prediction{IncidentID: "i-1"})
	flush(t, env.client)
	tr.emit(t, event.AIPrediction, event.Prediction{IncidentID: "i-2"})
	waitFor(t, env.client, "follow-up handler", func() bool { return followUp.Load() == 1 })

	if got := env.client.Stats().Subscriptions[event.AIPrediction]; got != 1 {
		t.Errorf("Subscriptions[ai-prediction] = %d, want 1", got)
	}
}

func TestClient_LateSubscribeRequestsSnapshot(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitForState(t, env.client, StateConnected)
	tr := env.factory.last()

	before := countName(tr.sentNames(), event.RequestMetrics)
	env.client.Subscribe(event.MetricsUpdate, func(event.Event) {})
	flush(t, env.client)

	if got := countName(tr.sentNames(), event.RequestMetrics); got != before+1 {
		t.Errorf("request-metrics sent %d times, want %d", got, before+1)
	}

	before = countName(tr.sentNames(), event.RequestServiceHealth)
	env.client.Subscribe(event.ServiceHealth, func(event.Event) {})
	flush(t, env.client)

	if got := countName(tr.sentNames(), event.RequestServiceHealth); got != before+1 {
		t.Errorf("request-service-health sent %d times, want %d", got, before+1)
	}
}

func TestClient_DisconnectClearsRegistry(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var calls atomic.Int32
	env.client.Subscribe(event.NewAlert, func(event.Event) { calls.Add(1) })
	env.client.Subscribe(event.MetricsUpdate, func(event.Event) { calls.Add(1) })
	waitForState(t, env.client, StateConnected)
	tr := env.factory.last()

	env.client.Disconnect()
	flush(t, env.client)

	if env.client.State() != StateIdle {
		t.Errorf("State() = %v, want idle", env.client.State())
	}
	if !tr.isClosed() {
		t.Error("transport should be closed")
	}
	if n := len(env.client.Stats().Subscriptions); n != 0 {
		t.Errorf("Subscriptions has %d names, want 0", n)
	}

	tr.emit(t, event.NewAlert, event.Alert{ID: "late"})
	flush(t, env.client)
	if calls.Load() != 0 {
		t.Errorf("handlers invoked %d times after Disconnect", calls.Load())
	}

	// The client is reusable.
	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitForState(t, env.client, StateConnected)
	if env.factory.count() != 2 {
		t.Errorf("transports created = %d, want 2", env.factory.count())
	}
}

func TestClient_DisconnectCancelsPendingReconnect(t *testing.T) {
	env := newTestEnv(t, testClientConfig())
	env.factory.setConnect(refuse)

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitFor(t, env.client, "reconnect timer", func() bool { return env.clock.pending() == 1 })

	env.client.Disconnect()
	flush(t, env.client)

	if env.clock.pending() != 0 {
		t.Errorf("pending timers = %d, want 0", env.clock.pending())
	}
	if env.client.Stats().Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", env.client.Stats().Attempts)
	}
}

func TestClient_StaleConnectResultIgnored(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	release := make(chan struct{})
	env.factory.setConnect(func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitForState(t, env.client, StateConnecting)

	env.client.Disconnect()
	flush(t, env.client)
	close(release)

	tr := env.factory.last()
	waitFor(t, env.client, "stale transport closed", tr.isClosed)

	flush(t, env.client)
	if env.client.State() != StateIdle {
		t.Errorf("State() = %v, want idle", env.client.State())
	}
	if env.client.Stats().Connects != 0 {
		t.Errorf("Connects = %d, want 0", env.client.Stats().Connects)
	}
}

func TestClient_ReconnectBackoffThenGiveUp(t *testing.T) {
	env := newTestEnv(t, testClientConfig())
	env.factory.setConnect(refuse)

	env.client.Subscribe(event.NewAlert, func(event.Event) {})

	for attempt := 1; attempt <= 5; attempt++ {
		waitFor(t, env.client, "reconnect timer", func() bool {
			return env.factory.count() == attempt && env.clock.pending() == 1
		})
		if env.client.State() != StateDisconnected {
			t.Fatalf("attempt %d: state = %v, want disconnected", attempt, env.client.State())
		}
		env.clock.fire(t)
	}

	waitForState(t, env.client, StateGaveUp)

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
	}
	got := env.clock.delays()
	if len(got) != len(want) {
		t.Fatalf("scheduled %d timers, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i+1, got[i], want[i])
		}
	}

	if env.factory.count() != 6 {
		t.Errorf("connection attempts = %d, want 6", env.factory.count())
	}
	if env.clock.pending() != 0 {
		t.Errorf("pending timers = %d after giving up, want 0", env.clock.pending())
	}

	var warnings int
	for _, n := range env.notified.All() {
		if n.Level == notify.LevelWarning {
			warnings++
		}
	}
	if warnings != 4 {
		t.Errorf("reconnect warnings = %d, want 4", warnings)
	}

	last, ok := env.notified.Last()
	if !ok {
		t.Fatal("no notifications recorded")
	}
	if last.Level != notify.LevelError || !last.Persistent || last.Title != "Connection Error" {
		t.Errorf("final notification = %+v, want persistent connection error", last)
	}

	// Nothing else happens on its own.
	flush(t, env.client)
	if env.factory.count() != 6 {
		t.Errorf("connection attempts after giving up = %d, want 6", env.factory.count())
	}
}

func TestClient_SubscribeAfterGiveUpStartsNewCycle(t *testing.T) {
	cfg := testClientConfig()
	cfg.MaxReconnectAttempts = 1
	env := newTestEnv(t, cfg)
	env.factory.setConnect(refuse)

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitFor(t, env.client, "reconnect timer", func() bool { return env.clock.pending() == 1 })
	env.clock.fire(t)
	waitForState(t, env.client, StateGaveUp)

	env.factory.setConnect(nil)
	env.client.Subscribe(event.PipelineUpdate, func(event.Event) {})
	waitForState(t, env.client, StateConnected)

	if env.client.Stats().Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", env.client.Stats().Attempts)
	}
}

func TestClient_SubscribeWhileReconnectPending(t *testing.T) {
	env := newTestEnv(t, testClientConfig())
	env.factory.setConnect(refuse)

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitFor(t, env.client, "reconnect timer", func() bool { return env.clock.pending() == 1 })

	// A new subscriber connects right away instead of waiting out the backoff.
	env.factory.setConnect(nil)
	env.client.Subscribe(event.MetricsUpdate, func(event.Event) {})
	waitForState(t, env.client, StateConnected)

	if env.factory.count() != 2 {
		t.Errorf("transports created = %d, want 2", env.factory.count())
	}
	if env.clock.pending() != 0 {
		t.Errorf("pending timers = %d, want 0", env.clock.pending())
	}
	if !containsName(env.factory.last().sentNames(), event.RequestMetrics) {
		t.Error("new connection should request a metrics snapshot")
	}

	env.client.Subscribe(event.PipelineUpdate, func(event.Event) {})
	flush(t, env.client)
	if env.factory.count() != 2 {
		t.Errorf("transports created after connecting = %d, want 2", env.factory.count())
	}
}

func TestClient_SubscribeWhileReconnectPendingKeepsAttempts(t *testing.T) {
	env := newTestEnv(t, testClientConfig())
	env.factory.setConnect(refuse)

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitFor(t, env.client, "reconnect timer", func() bool { return env.clock.pending() == 1 })

	// Still refused: the early attempt counts toward the same cycle and
	// leaves exactly one timer armed with the next delay.
	env.client.Subscribe(event.MetricsUpdate, func(event.Event) {})
	waitFor(t, env.client, "second timer", func() bool {
		return env.factory.count() == 2 && env.clock.pending() == 1
	})

	if got := env.client.Stats().Attempts; got != 2 {
		t.Errorf("Attempts = %d, want 2", got)
	}
	delays := env.clock.delays()
	if d := delays[len(delays)-1]; d != 4*time.Second {
		t.Errorf("next reconnect delay = %v, want 4s", d)
	}
}

func TestClient_TransportErrorReconnects(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	var calls atomic.Int32
	env.client.Subscribe(event.NewAlert, func(event.Event) { calls.Add(1) })
	waitForState(t, env.client, StateConnected)
	first := env.factory.last()

	// A frame read before the failure is still delivered.
	first.emit(t, event.NewAlert, event.Alert{ID: "before-drop"})
	first.errs <- errDialRefused

	waitForState(t, env.client, StateDisconnected)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if !first.isClosed() {
		t.Error("failed transport should be closed")
	}
	if env.clock.pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", env.clock.pending())
	}
	if d := env.clock.delays()[0]; d != 2*time.Second {
		t.Errorf("first reconnect delay = %v, want 2s", d)
	}

	env.clock.fire(t)
	waitForState(t, env.client, StateConnected)

	second := env.factory.last()
	if second == first {
		t.Fatal("expected a fresh transport")
	}
	if env.client.Stats().Attempts != 0 {
		t.Errorf("Attempts = %d after reconnect, want 0", env.client.Stats().Attempts)
	}

	second.emit(t, event.NewAlert, event.Alert{ID: "after-reconnect"})
	waitFor(t, env.client, "delivery after reconnect", func() bool { return calls.Load() == 2 })
}

func TestClient_UnlimitedAttempts(t *testing.T) {
	cfg := testClientConfig()
	cfg.MaxReconnectAttempts = 0
	env := newTestEnv(t, cfg)
	env.factory.setConnect(refuse)

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	for attempt := 1; attempt <= 8; attempt++ {
		waitFor(t, env.client, "reconnect timer", func() bool {
			return env.factory.count() == attempt && env.clock.pending() == 1
		})
		env.clock.fire(t)
	}

	waitFor(t, env.client, "ninth attempt", func() bool { return env.factory.count() == 9 })
	if env.client.State() == StateGaveUp {
		t.Error("client gave up with unlimited attempts")
	}
}

func TestClient_Stop(t *testing.T) {
	env := newTestEnv(t, testClientConfig())

	env.client.Subscribe(event.NewAlert, func(event.Event) {})
	waitForState(t, env.client, StateConnected)
	tr := env.factory.last()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.client.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !tr.isClosed() {
		t.Error("transport should be closed after Stop")
	}
	if env.client.State() != StateIdle {
		t.Errorf("State() = %v, want idle", env.client.State())
	}

	// Calls after Stop are ignored.
	if sub := env.client.Subscribe(event.NewAlert, func(event.Event) {}); sub != nil {
		t.Error("Subscribe after Stop should return nil")
	}
	env.client.Disconnect()
	if env.factory.count() != 1 {
		t.Errorf("transports created = %d, want 1", env.factory.count())
	}

	if err := env.client.Stop(ctx); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
