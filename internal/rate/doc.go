// Package rate provides the Redis-backed counting primitives that the
// domain limiters in internal/limiters are built from.
//
// # Window semantics
//
//   - [SlidingWindow]: one sorted-set member per accepted hit, scored by its
//     millisecond timestamp. Trimming, counting and admitting happen in one
//     Lua script, so concurrent callers cannot overshoot the limit.
//   - [Counter]: fixed-window INCR with EXPIRE set on the first hit.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Choose key names; callers own their namespaces.
package rate
