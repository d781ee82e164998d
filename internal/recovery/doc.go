// Package recovery drives automated recovery from classified errors.
//
// An Orchestrator maps an error's recovery strategy to an ordered chain of
// actions and runs them one at a time against a Session until one succeeds.
// Before acting it persists a Snapshot so a restarted client can resume.
package recovery
