// Package otpauth provides passwordless authentication for the ticketing
// site: one-time codes for signup and login, account creation, and
// short-lived bearer session tokens, guarded by per-source rate limiting.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// otpauth is the public surface. It exposes [Engine], [Builder], [Config],
// value types ([User], [AuthResult], [VerifyOutcome]) and the pluggable
// storage contracts ([AccountDirectory], [ChallengeBackend], [WindowBackend],
// [Notifier]). Redis and in-memory implementations of the challenge and
// window backends live under internal/ and are selected by the Builder.
//
// # Storage contracts
//
// Every shared mutable record is reached through a single atomic storage
// operation: challenge upsert replaces any live challenge for the key,
// verification increments attempts or deletes the record in one unit, and
// window hits increment and arm expiry in one unit. The defaults are
// process-local; a multi-instance deployment supplies Redis through
// [Builder.WithRedis] without changing orchestration.
//
// # What this package must NOT do
//
//   - Store or log plaintext one-time codes.
//   - Reveal why a bearer token was rejected.
//   - Roll back a stored challenge because notification delivery failed.
package otpauth
