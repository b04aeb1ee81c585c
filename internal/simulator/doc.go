// Package simulator serves a mock monitoring event stream over WebSocket.
//
// It broadcasts every event kind the realtime client understands on a fixed
// interval and answers request-metrics and request-service-health with an
// immediate snapshot to the requesting connection. Resource metrics come from
// the host via gopsutil when available.
package simulator
