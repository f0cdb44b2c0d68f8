package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// appDirName is the per-installation directory under the platform's
// standard config root (AppData on Windows, ~/.config on Linux,
// ~/Library/Application Support on macOS).
const appDirName = "vcengine"

// licenseFileName is the encrypted activation record.
const licenseFileName = "license.json"

// DefaultLicensePath returns the platform-appropriate license file
// location, creating the parent directory if needed.
func DefaultLicensePath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	dir := filepath.Join(root, appDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", dir, err)
	}
	return filepath.Join(dir, licenseFileName), nil
}

// adjacentConfigFile returns the path of the YAML config expected next
// to the running binary.
func adjacentConfigFile() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), configFileName), nil
}
