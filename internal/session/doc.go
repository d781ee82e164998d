// Package session is the client-facing facade of a sketchduel game session.
//
// A Session wires the connection manager, the game state machine and the
// recovery orchestrator together:
//
//   - server events flow from the connection into the state machine
//   - classified errors are recorded on the state, throttled for callbacks
//     and handed to recovery when recoverable
//   - terminal errors clear the session and raise a blocking Notice
//
// Game actions validate their input at the call site and return validation
// errors synchronously without retrying them.
package session
