// Package config loads and validates feedd configuration from YAML.
//
// Environment variables in the file are expanded with ${VAR} syntax, so
// tokens and endpoints can stay out of the config file itself.
package config
