// Package app wires the license engine together: configuration,
// logging, the engine core and the HTTP server, plus graceful shutdown
// on SIGINT and SIGTERM.
package app
