package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"vcengine/internal/security"
)

// Policy holds the compiled-in validity policy. The server's
// offlineToleranceHours override is authoritative when present; the
// local default applies otherwise.
type Policy struct {
	Mode                  BindingMode
	GracePeriodDays       int
	OfflineToleranceHours int
	ClockTamperTolerance  time.Duration
}

// DefaultPolicy returns the stock policy for a binding mode.
func DefaultPolicy(mode BindingMode) Policy {
	return Policy{
		Mode:                  mode,
		GracePeriodDays:       7,
		OfflineToleranceHours: 72,
		ClockTamperTolerance:  time.Hour,
	}
}

// Activation attempts are rate limited to slow down key guessing.
const (
	activationRateInterval = 2 * time.Second
	activationBurst        = 5
)

// Manager orchestrates the fingerprint generator, key codec, encrypted
// store and server client into the license validity state machine. The
// current status is never stored; every Validate call recomputes it.
type Manager struct {
	codec      *Codec
	store      *Store
	client     *Client
	hw         *security.Generator
	policy     Policy
	deviceName string
	logger     *slog.Logger
	metrics    *Metrics
	limiter    *rate.Limiter
	group      singleflight.Group
	now        func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock injects a clock source. Production code uses time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithDeviceName overrides the device name reported on activation.
func WithDeviceName(name string) ManagerOption {
	return func(m *Manager) { m.deviceName = name }
}

// WithMetrics attaches OpenTelemetry instruments.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager wires the engine components together. One Manager is
// constructed at startup and passed to whichever component needs it;
// there is no ambient singleton.
func NewManager(codec *Codec, store *Store, client *Client, hw *security.Generator,
	policy Policy, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "device-" + uuid.NewString()[:8]
	}

	m := &Manager{
		codec:      codec,
		store:      store,
		client:     client,
		hw:         hw,
		policy:     policy,
		deviceName: hostname,
		logger:     logger.With(slog.String("component", "license_manager")),
		limiter:    rate.NewLimiter(rate.Every(activationRateInterval), activationBurst),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Activate validates the key locally, asks the authority to bind it to
// this machine and persists the activation record on success. It is the
// only transition into the activated state.
func (m *Manager) Activate(ctx context.Context, key string) (*ActivationResult, error) {
	if !m.limiter.Allow() {
		m.logger.Warn("activation rate limit hit")
		return &ActivationResult{Message: "too many activation attempts, please wait"}, ErrRateLimited
	}
	if m.metrics != nil {
		m.metrics.ActivationAttempts.Add(ctx, 1)
	}

	result, err := m.activate(ctx, key)
	if (err != nil || !result.Success) && m.metrics != nil {
		m.metrics.ActivationFailures.Add(ctx, 1)
	}
	return result, err
}

func (m *Manager) activate(ctx context.Context, key string) (*ActivationResult, error) {
	decoded, err := m.codec.Decode(key)
	if err != nil {
		m.logger.Info("activation rejected by codec",
			slog.String("license_key", MaskKey(key)),
			slog.String("error", err.Error()),
		)
		return &ActivationResult{Message: activationMessage(err)}, nil
	}
	if decoded.Mode != m.policy.Mode {
		return &ActivationResult{
			Message: fmt.Sprintf("this key requires %s-binding activation", decoded.Mode),
		}, nil
	}

	fingerprint := m.hw.Fingerprint()

	if existing, loadErr := m.store.Load(); loadErr == nil && existing != nil {
		if existing.LicenseKey != normalizeKey(key) {
			return &ActivationResult{
				Message: "another license is already active on this machine, deactivate it first",
			}, ErrAlreadyActivated
		}
	}

	// Pre-binding keys name their machine; refuse locally before any
	// network round trip.
	if decoded.Mode == PreBinding && decoded.FingerprintFragment != fingerprint[:fragmentLength] {
		m.logger.Warn("activation fingerprint fragment mismatch",
			slog.String("license_key", MaskKey(key)),
		)
		return &ActivationResult{Message: "this license key was issued for a different machine"}, ErrHardwareMismatch
	}

	resp, err := m.client.Activate(ctx, normalizeKey(key), fingerprint, m.deviceName)
	if err != nil {
		if isOffline(err) {
			return &ActivationResult{Message: "license server not reachable, try again later"}, nil
		}
		return &ActivationResult{Message: trimRejection(err)}, nil
	}
	if !resp.Success {
		message := resp.Message
		if message == "" {
			message = "license server declined the activation"
		}
		return &ActivationResult{Message: message}, nil
	}

	record := &ActivationRecord{
		LicenseKey:   normalizeKey(key),
		Fingerprint:  fingerprint,
		ProductCode:  decoded.ProductCode,
		ActivationID: uuid.NewString(),
		DeviceName:   m.deviceName,
		ActivatedAt:  m.now(),
	}
	if resp.License != nil && resp.License.ActivationID != "" {
		record.ActivationID = resp.License.ActivationID
	}
	if err := m.store.Save(record); err != nil {
		return nil, fmt.Errorf("persist activation record: %w", err)
	}

	now := m.now()
	m.cacheVerdict(&ValidateResponse{
		Valid:      true,
		Activated:  true,
		ServerTime: now,
	}, now)

	m.logger.Info("license activated",
		slog.String("license_key", MaskKey(key)),
		slog.String("product", decoded.ProductCode),
		slog.String("mode", string(decoded.Mode)),
		slog.String("activation_id", record.ActivationID),
	)
	return &ActivationResult{Success: true, Message: "license activated"}, nil
}

// Validate recomputes the license status. Overlapping calls collapse
// into a single evaluation; a completed server response is allowed to
// update the cache even when its caller has gone away.
func (m *Manager) Validate(ctx context.Context) (*ValidationResult, error) {
	v, err, _ := m.group.Do("validate", func() (any, error) {
		start := time.Now()
		result := m.evaluate(context.WithoutCancel(ctx))
		m.metrics.RecordValidation(ctx, result.Status, time.Since(start))
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ValidationResult), nil
}

// evaluate walks the state table in its fixed order: clock tamper
// first, then existence, hardware binding, the server-reachability
// branch and finally local date arithmetic.
func (m *Manager) evaluate(ctx context.Context) *ValidationResult {
	now := m.now()
	fingerprint := m.hw.Fingerprint()
	result := &ValidationResult{HardwareID: fingerprint}

	// 1. Backward clock movement invalidates all other reasoning.
	if last := m.store.LastCheck(); !last.IsZero() && now.Before(last.Add(-m.policy.ClockTamperTolerance)) {
		if m.metrics != nil {
			m.metrics.ClockTamperEvents.Add(ctx, 1)
		}
		m.logger.Error("system clock behind last server check",
			slog.Time("last_check", last),
			slog.Time("now", now),
		)
		result.Status = StatusClockManipulated
		result.Message = "system clock has been set backwards"
		return result
	}

	// 2. Record existence and integrity.
	record, err := m.store.Load()
	if err != nil {
		result.Status = StatusInvalidKey
		result.Message = "stored license data is unreadable, please activate again"
		return result
	}
	if record == nil {
		result.Status = StatusNotActivated
		result.Message = "no license activated on this machine"
		return result
	}

	decoded, err := m.codec.Decode(record.LicenseKey)
	if err != nil {
		result.Status = StatusInvalidKey
		result.Message = "stored license key is invalid"
		return result
	}
	if !decoded.Expiry.IsZero() {
		expiry := decoded.Expiry
		result.ExpiryDate = &expiry
		days := int(expiry.Sub(now).Hours() / 24)
		result.DaysUntilExpiry = &days
	}

	// 3. Hardware binding.
	if m.policy.Mode == PreBinding && record.Fingerprint != fingerprint {
		m.logger.Warn("stored fingerprint does not match this machine")
		result.Status = StatusHardwareMismatch
		result.Message = "license is bound to a different machine"
		return result
	}

	// 4. Server reconciliation; any network failure means offline.
	verdict, err := m.client.Validate(ctx, fingerprint)
	if err == nil {
		m.cacheVerdict(verdict, now)
		return m.applyServerVerdict(result, decoded, verdict, now)
	}
	if m.metrics != nil {
		m.metrics.OfflineFallbacks.Add(ctx, 1)
	}
	m.logger.Info("license server unreachable, using cached verdict",
		slog.String("error", err.Error()),
	)
	return m.applyOfflinePolicy(result, decoded, now)
}

func (m *Manager) applyServerVerdict(result *ValidationResult, decoded *DecodedKey,
	verdict *ValidateResponse, now time.Time) *ValidationResult {
	switch {
	case verdict.Revoked:
		result.Status = StatusRevoked
		result.Message = revocationMessage(verdict.Reason)
	case verdict.Valid:
		result.Status = StatusValid
		result.Message = "license is valid"
	case decoded.Mode == PreBinding:
		// Server declined without revoking; fall back to the key's own
		// expiry arithmetic.
		return m.applyExpiry(result, decoded, now)
	default:
		result.Status = StatusExpired
		result.Message = verdict.Reason
		if result.Message == "" {
			result.Message = "license is no longer valid"
		}
	}
	return result
}

func (m *Manager) applyOfflinePolicy(result *ValidationResult, decoded *DecodedKey,
	now time.Time) *ValidationResult {
	cached := m.store.LoadVerdict()

	// A cached revocation is honored even offline.
	if cached != nil && cached.Revoked {
		result.Status = StatusRevoked
		result.Message = revocationMessage(cached.RevokedReason)
		return result
	}

	// Pre-binding keys are self-contained: their embedded expiry decides
	// offline validity, not the tolerance window.
	if decoded.Mode == PreBinding {
		return m.applyExpiry(result, decoded, now)
	}

	last := m.store.LastCheck()
	if cached == nil || !cached.Valid || last.IsZero() {
		result.Status = StatusOfflineExpired
		result.Message = "license server unreachable and no trusted cached verdict exists"
		return result
	}

	tolerance := time.Duration(cached.OfflineToleranceHours) * time.Hour
	if elapsed := now.Sub(last); elapsed > tolerance {
		result.Status = StatusOfflineExpired
		result.Message = fmt.Sprintf("offline for %.0f hours, exceeds the %d hour tolerance",
			elapsed.Hours(), cached.OfflineToleranceHours)
		return result
	}

	result.Status = StatusOfflineValid
	result.Message = "license valid from cached verdict"
	return result
}

func (m *Manager) applyExpiry(result *ValidationResult, decoded *DecodedKey,
	now time.Time) *ValidationResult {
	expiry := decoded.Expiry
	grace := expiry.AddDate(0, 0, m.policy.GracePeriodDays)

	switch {
	case now.Before(expiry):
		result.Status = StatusValid
		result.Message = "license is valid"
	case now.Before(grace):
		result.Status = StatusGracePeriod
		result.Message = fmt.Sprintf("license expired, grace period ends %s",
			grace.Format("2006-01-02"))
	default:
		result.Status = StatusExpired
		result.Message = "license has expired"
	}
	return result
}

// cacheVerdict overwrites the verdict cache and advances the last-check
// anchor. Every successful server exchange lands here.
func (m *Manager) cacheVerdict(verdict *ValidateResponse, now time.Time) {
	tolerance := m.policy.OfflineToleranceHours
	if verdict.OfflineToleranceHours > 0 {
		tolerance = verdict.OfflineToleranceHours
	}

	cached := &ServerVerdict{
		Valid:                 verdict.Valid,
		Revoked:               verdict.Revoked,
		RevokedReason:         verdict.Reason,
		ServerTime:            verdict.ServerTime,
		CachedAt:              now,
		OfflineToleranceHours: tolerance,
	}
	if err := m.store.SaveVerdict(cached); err != nil {
		m.logger.Warn("could not cache server verdict", slog.String("error", err.Error()))
	}
	if err := m.store.TouchLastCheck(now); err != nil {
		m.logger.Warn("could not record server check time", slog.String("error", err.Error()))
	}
}

// Deactivate clears the activation record. The verdict cache and the
// last-check timestamp survive so anti-tamper evidence outlives a local
// reset.
func (m *Manager) Deactivate(ctx context.Context) (*ActivationResult, error) {
	if !m.store.Has() {
		return &ActivationResult{Message: "no license activated on this machine"}, ErrNotActivated
	}
	if err := m.store.ClearActivation(); err != nil {
		return nil, fmt.Errorf("clear activation record: %w", err)
	}
	m.logger.Info("license deactivated")
	return &ActivationResult{Success: true, Message: "license deactivated"}, nil
}

// Info reports the validation result plus hardware details and the
// storage location, for diagnostics surfaces.
func (m *Manager) Info(ctx context.Context) (*Info, error) {
	result, err := m.Validate(ctx)
	if err != nil {
		return nil, err
	}

	info := &Info{
		ValidationResult:   *result,
		Mode:               m.policy.Mode,
		ProductCode:        m.codec.ProductCode(),
		StoragePath:        m.store.Path(),
		HardwareComponents: m.hw.Components(),
	}
	if record, loadErr := m.store.Load(); loadErr == nil && record != nil {
		activatedAt := record.ActivatedAt
		info.ActivatedAt = &activatedAt
		info.DeviceName = record.DeviceName
	}
	return info, nil
}

// StartRevalidation re-validates at the given interval until ctx is
// cancelled. Hosts that want periodic checks call this once at startup.
func (m *Manager) StartRevalidation(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				result, err := m.Validate(ctx)
				if err != nil {
					m.logger.Warn("periodic validation failed", slog.String("error", err.Error()))
					continue
				}
				m.logger.Debug("periodic validation",
					slog.String("status", string(result.Status)),
				)
			}
		}
	}()
}

func normalizeKey(key string) string {
	decodedUpper := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == ' ' || c == '\t' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		decodedUpper = append(decodedUpper, c)
	}
	return string(decodedUpper)
}

func isOffline(err error) bool {
	return errors.Is(err, ErrServerOffline)
}

func trimRejection(err error) string {
	if errors.Is(err, ErrServerRejected) {
		return err.Error()
	}
	return "activation failed: " + err.Error()
}

func activationMessage(err error) string {
	switch {
	case errors.Is(err, ErrKeyProduct):
		return "this license key belongs to a different product"
	case errors.Is(err, ErrKeyChecksum):
		return "license key is invalid, please check for typos"
	case errors.Is(err, ErrKeyCorrupt):
		return "license key data is corrupt, request a replacement key"
	default:
		return "license key format is invalid"
	}
}

func revocationMessage(reason string) string {
	if reason == "" {
		return "license has been revoked"
	}
	return "license has been revoked: " + reason
}
