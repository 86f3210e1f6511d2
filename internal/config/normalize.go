package config

import "strings"

func (c *Config) normalize() error {
	logDir, err := expandPath(strings.TrimSpace(c.Paths.LogDir))
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	if c.Bridge.Binary != "" {
		binary, err := expandPath(strings.TrimSpace(c.Bridge.Binary))
		if err != nil {
			return err
		}
		c.Bridge.Binary = binary
	}

	c.Cook.Platform = strings.ToLower(strings.TrimSpace(c.Cook.Platform))
	c.Cook.Endianness = strings.ToLower(strings.TrimSpace(c.Cook.Endianness))
	c.Image.Compression = strings.ToLower(strings.TrimSpace(c.Image.Compression))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
