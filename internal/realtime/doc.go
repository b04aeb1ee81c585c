// Package realtime implements the Realtime Event Client.
//
// A Client multiplexes named event subscriptions over one WebSocket transport:
//   - Connects lazily on the first subscription
//   - Dispatches each inbound frame to every handler registered for its event name
//   - Reconnects with capped exponential backoff and gives up after MaxReconnectAttempts
//   - Requests metrics and service-health snapshots whenever a connection is established
//
// All client state is owned by a single dispatch goroutine. Public methods,
// transport pumps and reconnect timers post closures onto an unbounded mailbox,
// so handlers run one at a time and may call back into the client freely.
package realtime
