// Package store provides persistence backends for user state, the audit
// logs and artifacts: a SQLite implementation for production use and an
// in-memory implementation for tests and demos.
package store
