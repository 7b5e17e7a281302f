// Package prometheus renders Engine metrics in Prometheus text exposition
// format without a client library. Counters are named userauth_*_total; the
// single histogram is userauth_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
