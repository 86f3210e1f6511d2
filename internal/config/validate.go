package config

import (
	"errors"
	"fmt"
	"strings"
)

var validPlatforms = map[string]struct{}{
	"generic":  {},
	"tiled":    {},
	"swizzled": {},
}

var validCompression = map[string]struct{}{
	"fastest": {},
	"default": {},
	"better":  {},
	"best":    {},
}

// Validate checks cross-field constraints after normalization.
func (c *Config) Validate() error {
	var problems []string

	if _, ok := validPlatforms[c.Cook.Platform]; !ok {
		problems = append(problems, fmt.Sprintf("cook.platform: unsupported value %q", c.Cook.Platform))
	}
	if c.Cook.Endianness != "little" && c.Cook.Endianness != "big" {
		problems = append(problems, fmt.Sprintf("cook.endianness: unsupported value %q", c.Cook.Endianness))
	}
	if c.Cook.Workers < 0 {
		problems = append(problems, "cook.workers: must not be negative")
	}
	if c.Cook.FingerprintCacheSize < 0 {
		problems = append(problems, "cook.fingerprint_cache_size: must not be negative")
	}
	if c.Bridge.StartupTimeout <= 0 {
		problems = append(problems, "bridge.startup_timeout: must be positive")
	}
	if _, ok := validCompression[c.Image.Compression]; !ok {
		problems = append(problems, fmt.Sprintf("image.compression: unsupported value %q", c.Image.Compression))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
