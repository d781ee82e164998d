// Package metrics provides Prometheus metrics for monitoring a session.
//
// Key metrics:
//   - Connection status, reconnect attempts and message rates
//   - Request latency, retries and circuit breaker state
//   - Batch sizes, compression savings, queue depth and pool size
//   - Error counts (including throttled callbacks) and recovery outcomes
package metrics
