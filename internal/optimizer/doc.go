// Package optimizer reduces outbound traffic.
//
// High-frequency envelope types are batched and flushed by size or delay.
// Large payloads are gzip-compressed when that actually shrinks them.
// Business requests are serialized through a bounded, rate-spaced Queue, and
// auxiliary connections are kept in an LRU Pool.
package optimizer
