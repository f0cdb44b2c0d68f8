package license

import (
	"context"
	"errors"
	"time"

	"vcengine/internal/security"
)

// HealthStatus classifies the engine's operational condition.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
)

// ComponentHealth reports one engine component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthReport is the engine-wide health snapshot. A dead network is a
// degradation, not a failure: the engine keeps working off the cached
// verdict.
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health probes the fingerprint generator, the encrypted store and the
// license server connection.
func (m *Manager) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:     HealthStatusHealthy,
		CheckedAt:  m.now(),
		Components: make(map[string]ComponentHealth),
	}
	degrade := func(name, message string) {
		report.Status = HealthStatusDegraded
		report.Components[name] = ComponentHealth{Status: HealthStatusDegraded, Message: message}
	}

	if len(m.hw.Fingerprint()) == security.FingerprintLength {
		report.Components["fingerprint"] = ComponentHealth{Status: HealthStatusHealthy}
	} else {
		degrade("fingerprint", "fingerprint has unexpected shape")
	}

	if _, err := m.store.Load(); errors.Is(err, ErrRecordCorrupt) {
		degrade("store", "stored activation record corrupt")
	} else {
		report.Components["store"] = ComponentHealth{Status: HealthStatusHealthy}
	}

	if _, err := m.client.CheckConnection(ctx); err != nil {
		degrade("server", "license server not reachable")
	} else {
		report.Components["server"] = ComponentHealth{Status: HealthStatusHealthy}
	}

	return report
}
