// Package forwarder implements the TCP accept loop and the per-connection
// relay. Every accepted connection takes a snapshot of the shared best
// target and is piped to it bidirectionally, optionally prefixed with a
// PROXY protocol v2 header. Payload bytes pass through unmodified.
package forwarder
