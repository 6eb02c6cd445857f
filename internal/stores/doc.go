// Package stores provides the backends that persist one-time code
// challenges: a Redis store for multi-instance deployments and an in-memory
// store for a single process.
//
// # Design
//
// Each challenge is a versioned, binary-encoded record holding only the
// keyed hash of the code, the attempt counter and the expiry instant.
// Writes are a single overwrite, so re-issuing a code replaces the previous
// record in one step. A check on the Redis store is one Lua script that
// reads, evaluates and deletes or increments the record, so concurrent
// checks of one key serialize inside Redis; the memory store holds a mutex
// for the whole check. The script compares the 32-byte keyed hashes in
// Redis; Go-side comparison is constant time.
//
// Records outlive their logical expiry by a retention window so a late
// verify is reported as expired rather than missing.
//
// # What this package must NOT do
//
//   - Import otpauth or any sibling internal package.
//   - Store, log or return plaintext codes.
//   - Use non-constant-time comparisons for secret matching in Go code.
package stores
