// Package config holds the daemon configuration: defaults, the YAML config
// file, XDG paths and validation.
//
// Values are resolved in this order, later sources winning:
//  1. NewConfig defaults
//  2. the YAML file located by FindConfigFile
//  3. command line flags (applied by cmd/onionsentry)
//
// Validate is called once after all sources have been applied.
package config
