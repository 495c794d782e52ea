// Package adminserver provides the optional HTTP server for operational
// endpoints: the metrics snapshot and a health check reflecting whether a
// best target is currently known.
package adminserver
