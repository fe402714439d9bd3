// Package stores persists run history in SQLite.
//
// The schema is managed by embedded golang-migrate migrations and holds one
// row per run plus one row per performed resource task. Recorder plugs the
// store into the scheduler as an engine.Observer.
package stores
