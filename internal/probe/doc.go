// Package probe measures target reachability and latency. A probe is a
// single timed TCP connection attempt; the Scorer aggregates a fixed number
// of probes against one target into a single comparable score, charging a
// configurable latency penalty for each failed attempt.
package probe
