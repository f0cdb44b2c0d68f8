// Package shared holds utilities used across the engine that belong to
// no single domain package. Currently that is the testutil subpackage
// with the captured-slog test helpers.
package shared
