// Package limiters provides fixed-window request counters keyed by an
// arbitrary source string.
//
// # Limiters
//
//   - [RedisWindow] counts in Redis with a single Lua script so the
//     increment and the window expiry are applied together.
//   - [MemoryWindow] counts in process for single-instance deployments.
//
// Both report the count inside the active window and the instant the window
// resets. Callers compare the count against their own budget.
//
// # What this package must NOT do
//
//   - Import otpauth or any sibling internal package.
//   - Make policy decisions beyond counting.
package limiters
