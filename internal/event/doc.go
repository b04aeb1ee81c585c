// Package event defines the realtime event taxonomy and its wire format.
//
// Every inbound frame is a JSON envelope tagged with an event name:
//
//	{"event": "metrics-update", "data": {...}, "ts": 1718000000000}
//
// Each known name decodes to its own payload type, so subscribers never
// inspect untyped data. Names the client does not know decode to Raw.
package event
