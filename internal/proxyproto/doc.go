// Package proxyproto encodes PROXY protocol v2 headers. Only the encoding
// side is implemented: the forwarder writes one header at the front of each
// outbound connection so the upstream learns the original client endpoints.
package proxyproto
