// Package connection implements the connection manager.
//
// The manager:
//   - Owns the single game transport and its lifecycle status
//   - Reconnects with capped exponential backoff after an unexpected loss
//   - Replays the stored identity with a rejoin once re-dialed
//   - Correlates requests with the server's direct replies
//   - Routes inbound events and classified errors to subscribers, in order
//   - Keeps a bounded history of traffic for diagnostics
package connection
