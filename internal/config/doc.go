// Package config loads the engine configuration from, in priority
// order, environment variables, a YAML file next to the binary, and
// compiled-in defaults. It also resolves the per-installation license
// file location under the platform's standard config directory.
package config
