// Package target defines the candidate upstream types: the static Spec read
// from configuration, the Best value holding the current winner, and address
// resolution from host:port strings.
package target
