// Package store provides CredentialStore implementations for the session
// manager. Every store keeps a single raw bearer token under one key and
// performs no validation.
//
//   - Memory: process memory, for tests and ephemeral sessions.
//   - File: a JSON file, survives restarts for the same OS user.
//   - Bun: one row in a SQL table through bun (sqlite by default).
//   - Redis: one Redis key through go-redis.
package store
