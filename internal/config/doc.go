// Package config provides configuration parsing and validation for the
// raftkv server.
//
// Configuration is a small flat YAML subset: scalar keys, one level of
// nesting for the logging section, and a list of cluster members.
// Values may reference environment variables with ${VAR} or ${VAR:-default}.
package config
