// Package middleware adapts otpauth.Engine checks to net/http.
//
//   - [Guard] requires a bearer token and stores the proven identity in the
//     request context.
//   - [RateLimit] counts each request against the caller's fixed window and
//     sets the RateLimit-* response headers.
//   - [ClientIP] records the caller address for audit events.
//
// Rejections are written as JSON bodies of the form {"error":"CODE"}.
// The middleware never parses tokens or touches storage itself.
package middleware
