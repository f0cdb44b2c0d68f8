package license

import "time"

// Status is the enumerated outcome of a validation call. Exactly one
// status holds after each call; it is recomputed every time from the
// record, the verdict cache and the current clock, never persisted.
type Status string

const (
	StatusNotActivated     Status = "NOT_ACTIVATED"
	StatusValid            Status = "VALID"
	StatusGracePeriod      Status = "GRACE_PERIOD"
	StatusExpired          Status = "EXPIRED"
	StatusRevoked          Status = "REVOKED"
	StatusInvalidKey       Status = "INVALID_KEY"
	StatusHardwareMismatch Status = "HARDWARE_MISMATCH"
	StatusClockManipulated Status = "CLOCK_MANIPULATED"
	StatusOfflineValid     Status = "OFFLINE_VALID"
	StatusOfflineExpired   Status = "OFFLINE_EXPIRED"
)

// Usable reports whether the host may run under this status.
func (s Status) Usable() bool {
	switch s {
	case StatusValid, StatusGracePeriod, StatusOfflineValid:
		return true
	}
	return false
}

// ActivationResult is the host-facing outcome of an activation attempt.
type ActivationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ValidationResult is the host-facing outcome of a validation call.
type ValidationResult struct {
	Status          Status     `json:"status"`
	Message         string     `json:"message"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	DaysUntilExpiry *int       `json:"days_until_expiry,omitempty"`
	HardwareID      string     `json:"hardware_id"`
}

// Info is the extended license report for diagnostics surfaces.
type Info struct {
	ValidationResult
	Mode               BindingMode       `json:"mode"`
	ProductCode        string            `json:"product_code"`
	StoragePath        string            `json:"storage_path"`
	HardwareComponents map[string]string `json:"hardware_components"`
	ActivatedAt        *time.Time        `json:"activated_at,omitempty"`
	DeviceName         string            `json:"device_name,omitempty"`
}
