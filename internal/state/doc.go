// Package state implements the shared best-target cell: concurrently
// readable by the accept loop, replaced atomically by the selection engine.
package state
