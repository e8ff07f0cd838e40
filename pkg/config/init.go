package config

import (
	"fmt"
	"os"
)

// InitConfig writes a starter configuration file to the default location.
// It refuses to overwrite an existing file unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter configuration file to path. It refuses
// to overwrite an existing file unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	cfg.Cache.Root = "/var/lib/blockcache"
	cfg.Origins = []OriginConfig{
		{Host: "cache.example.com", Scheme: "https", Authority: "origin.example.com:443"},
	}

	return SaveConfig(cfg, path)
}
