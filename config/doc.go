// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the listen address, candidate targets, probing parameters, and the
// optional PROXY protocol setting.
package config
