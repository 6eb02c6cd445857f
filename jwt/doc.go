// Package jwt issues and verifies the stateless access tokens handed out
// after a successful code verification. Tokens carry {sub, email, name} and
// expire after a fixed TTL; nothing about them is persisted.
package jwt
