package realtime

import "github.com/opsboard/realtime/internal/event"

// subscribeTyped adapts a typed handler. Events whose payload is not T
// (a Raw from a mismatched sender) are skipped.
func subscribeTyped[T event.Event](c *Client, name event.Name, fn func(T)) *Subscription {
	if fn == nil {
		return nil
	}
	return c.Subscribe(name, func(e event.Event) {
		if payload, ok := e.(T); ok {
			fn(payload)
		}
	})
}

// SubscribeToMetrics subscribes to metrics-update.
func (c *Client) SubscribeToMetrics(fn func(event.Metrics)) *Subscription {
	return subscribeTyped(c, event.MetricsUpdate, fn)
}

// SubscribeToAlerts subscribes to new-alert.
func (c *Client) SubscribeToAlerts(fn func(event.Alert)) *Subscription {
	return subscribeTyped(c, event.NewAlert, fn)
}

// SubscribeToPipeline subscribes to pipeline-update.
func (c *Client) SubscribeToPipeline(fn func(event.Pipeline)) *Subscription {
	return subscribeTyped(c, event.PipelineUpdate, fn)
}

// SubscribeToAnomalies subscribes to anomaly-detected.
func (c *Client) SubscribeToAnomalies(fn func(event.Anomaly)) *Subscription {
	return subscribeTyped(c, event.AnomalyDetected, fn)
}

// SubscribeToAIPredictions subscribes to ai-prediction.
func (c *Client) SubscribeToAIPredictions(fn func(event.Prediction)) *Subscription {
	return subscribeTyped(c, event.AIPrediction, fn)
}

// SubscribeToServiceHealth subscribes to service-health.
func (c *Client) SubscribeToServiceHealth(fn func(event.Health)) *Subscription {
	return subscribeTyped(c, event.ServiceHealth, fn)
}
