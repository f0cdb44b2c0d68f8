package license

import "errors"

// Sentinel errors for the key codec. Checksum failures and product
// mismatches are deliberately distinct so callers can surface different
// user-facing messages.
var (
	ErrKeyFormat   = errors.New("license key format invalid")
	ErrKeyChecksum = errors.New("license key checksum mismatch")
	ErrKeyProduct  = errors.New("license key issued for a different product")
	ErrKeyCorrupt  = errors.New("license key embedded data corrupt")
)

// Sentinel errors for engine operations.
var (
	ErrNotActivated     = errors.New("no license activated")
	ErrAlreadyActivated = errors.New("a license is already activated on this machine")
	ErrHardwareMismatch = errors.New("license is bound to a different machine")
	ErrServerOffline    = errors.New("license server not reachable")
	ErrServerRejected   = errors.New("license server rejected the request")
	ErrRateLimited      = errors.New("too many activation attempts")
)
