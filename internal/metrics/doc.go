// Package metrics provides real-time metrics collection for the forwarder.
//
// It uses a channel-based event pipeline to asynchronously collect metrics
// about probing rounds (winners, score history, unreachable targets) and
// forwarded connections (accept/drop/close counts, relayed byte totals).
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the probing or accept loops. Events are emitted with non-blocking
// semantics: when the buffer is full the event is dropped rather than
// delaying the hot path.
package metrics
