// Package game holds the authoritative game state for a session.
//
// StateMachine consumes server events, builds a new GameState for each one
// and rejects updates that would move the round backwards or skip a phase.
// Observers always receive a clone.
package game
