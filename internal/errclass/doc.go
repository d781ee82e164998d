// Package errclass classifies client errors.
//
// Every failure the session engine surfaces is an *Error carrying a Kind.
// Classify maps a Kind to static handling metadata (category, severity,
// recovery strategy, user message). The table is pure data; the only
// runtime state in this package lives in Throttler.
package errclass
