// Package ws provides the realtime selection protocol over WebSocket.
//
// The package implements:
//   - Message: the JSON frame exchanged between viewers and the relay
//   - Hub: the set of connected viewers and the no-echo fan-out
//   - Handler: upgrade plus read/write pumps for each viewer connection
//   - Service: wires the hub, handler, metrics, history and recording
//   - Channel: the viewer side connection with fixed-backoff reconnect
//
// Delivery is at most once. Frames sent while a viewer is disconnected are
// dropped, and the relay never replays history to viewers.
package ws
