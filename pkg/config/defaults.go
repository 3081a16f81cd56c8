package config

import (
	"os"
	"path/filepath"
)

// defaultDBPath returns the default journal file path.
//
// Returns: ~/.config/folderwatch/journal.db.
func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./journal.db"
	}

	return filepath.Join(homeDir, ".config", "folderwatch", "journal.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/folderwatch/config.yaml.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "folderwatch", "config.yaml")
}

// SearchPaths returns the configuration file locations in order of
// precedence.
func SearchPaths() []string {
	return []string{
		"./folderwatch.yaml",
		DefaultConfigPath(),
	}
}

// FindConfigFile resolves the configuration file in use: explicit if set,
// then FOLDERWATCH_CONFIG, then the first existing entry of SearchPaths.
// Returns empty string if no config file is found.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("FOLDERWATCH_CONFIG"); env != "" {
		return env
	}

	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
