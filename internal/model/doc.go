// Package model defines shared data types used across the sketchduel client.
//
// Conventions:
//   - GameState values are replaced wholesale, never mutated in place.
//     Use Clone before handing a state to another goroutine.
//   - Timestamps: time.Time in the local clock, UnixMilli on the wire
//   - Scores: 0-100, ranks are 1-based and dense
package model
