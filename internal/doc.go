// Package internal contains helpers private to otpauth: one-time code
// generation from crypto/rand and the keyed hash applied to codes before
// they are stored.
//
// # Sub-packages
//
//   - limiters: fixed-window request counters (Redis, memory)
//   - stores: challenge record persistence (Redis, memory)
//   - appconfig: process configuration loaded from env and .env files
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpauth API.
//   - Be imported by any package outside the otpauth module.
package internal
