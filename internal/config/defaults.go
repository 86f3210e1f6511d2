package config

import (
	"os"
	"path/filepath"
)

// Default returns the baseline configuration applied before any file
// contents are decoded.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir(),
		},
		Cook: Cook{
			Platform:             "generic",
			Endianness:           "little",
			Workers:              0,
			FailFast:             false,
			FingerprintCacheSize: 4096,
		},
		Bridge: Bridge{
			Binary:         "",
			StartupTimeout: 30,
			Silence:        true,
		},
		Image: Image{
			Compression: "default",
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func defaultLogDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && base != "" {
		return filepath.Join(base, "kiln")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/state/kiln"
	}
	return filepath.Join(home, ".local", "state", "kiln")
}
