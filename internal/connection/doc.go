// Package connection implements the WebSocket transport used by the realtime client.
//
// A Transport owns exactly one gorilla/websocket connection:
//   - Dials with an optional bearer token and a handshake timeout
//   - Stamps every inbound frame with its local receive time
//   - Sends keepalive pings and reports stale or dropped connections on Errors()
//
// Reconnection is not handled here; a failed Transport is discarded and the
// realtime client opens a new one.
package connection
