// Package config loads and validates the tool-level TOML
// configuration: cook defaults (platform, endianness, workers),
// authoring-tool bridge settings, image compression, and logging.
package config
