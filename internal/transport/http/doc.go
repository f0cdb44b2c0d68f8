// Package http exposes the license engine over HTTP for host
// applications: status, detailed report, activation, deactivation and
// health. Handlers return the standard success envelope on 2xx and the
// structured APIError envelope otherwise.
package http
