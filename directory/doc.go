// Package directory provides AccountDirectory backends.
//
// Postgres is the durable backend; uniqueness of email and phone is enforced
// by the schema in migrations/ and surfaced as otpauth.ErrAccountExists.
// Memory keeps accounts in process and suits tests and single-instance
// development servers.
package directory
