// Package resilience wraps outbound requests with a timeout, retries with
// exponential backoff and a circuit breaker.
//
// An Executor is shared by every request of a session so that the breaker
// sees the session's overall failure rate. Failures are reported as
// *errclass.Error values; the errclass table decides what is retryable.
package resilience
