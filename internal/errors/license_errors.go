package errors

import (
	stderrors "errors"
	"net/http"

	"vcengine/internal/license"
)

// MapLicenseError translates engine sentinel errors into API errors
// with appropriate HTTP status codes.
func MapLicenseError(err error) *APIError {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, license.ErrKeyFormat):
		return NewWithDetails(http.StatusBadRequest, "INVALID_KEY_FORMAT",
			"License key format is invalid", err.Error())
	case stderrors.Is(err, license.ErrKeyChecksum):
		return New(http.StatusBadRequest, "INVALID_KEY_CHECKSUM",
			"License key failed integrity verification")
	case stderrors.Is(err, license.ErrKeyProduct):
		return New(http.StatusBadRequest, "WRONG_PRODUCT",
			"License key belongs to a different product")
	case stderrors.Is(err, license.ErrKeyCorrupt):
		return New(http.StatusBadRequest, "CORRUPT_KEY",
			"License key payload is corrupt")
	case stderrors.Is(err, license.ErrNotActivated):
		return New(http.StatusNotFound, "NOT_ACTIVATED",
			"No license has been activated on this machine")
	case stderrors.Is(err, license.ErrAlreadyActivated):
		return New(http.StatusConflict, "ALREADY_ACTIVATED",
			"A different license is already active on this machine. Deactivate it first.")
	case stderrors.Is(err, license.ErrHardwareMismatch):
		return New(http.StatusForbidden, "HARDWARE_MISMATCH",
			"License key is bound to different hardware")
	case stderrors.Is(err, license.ErrRateLimited):
		return New(http.StatusTooManyRequests, "RATE_LIMITED",
			"Too many activation attempts. Please wait before trying again.")
	case stderrors.Is(err, license.ErrServerRejected):
		return NewWithDetails(http.StatusUnprocessableEntity, "SERVER_REJECTED",
			"The license server rejected the request", err.Error())
	case stderrors.Is(err, license.ErrServerOffline):
		return New(http.StatusServiceUnavailable, "SERVER_UNREACHABLE",
			"The license server could not be reached")
	default:
		return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR",
			"Internal server error", err.Error())
	}
}
