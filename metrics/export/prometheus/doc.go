// Package prometheus exposes engine metrics through a client_golang
// Collector.
//
// [NewExporter] reads [otpauth.Engine.MetricsSnapshot] on every scrape and
// publishes otpauth_*_total counters plus the
// otpauth_otp_verify_latency_seconds histogram. [Exporter.Handler] serves a
// private registry, so nothing is added to the global default registry.
package prometheus
