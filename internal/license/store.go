package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vcengine/internal/security"
)

// ActivationRecord is the persisted proof of a successful activation.
// It is stored encrypted and destroyed on deactivation.
type ActivationRecord struct {
	LicenseKey   string    `json:"license_key"`
	Fingerprint  string    `json:"fingerprint"`
	ProductCode  string    `json:"product_code"`
	ActivationID string    `json:"activation_id"`
	DeviceName   string    `json:"device_name"`
	ActivatedAt  time.Time `json:"activated_at"`
}

// ServerVerdict is the last server-confirmed validity outcome. It is the
// fallback source of truth when the license server is unreachable.
type ServerVerdict struct {
	Valid                 bool      `json:"valid"`
	Revoked               bool      `json:"revoked"`
	RevokedReason         string    `json:"revoked_reason,omitempty"`
	ServerTime            time.Time `json:"server_time"`
	CachedAt              time.Time `json:"cached_at"`
	OfflineToleranceHours int       `json:"offline_tolerance_hours"`
}

// storeFile is the on-disk layout: one JSON file per installation. The
// activation record travels inside the encrypted licenseData blob; the
// verdict cache is plain metadata.
type storeFile struct {
	LicenseData     string         `json:"licenseData"`
	ServerCache     *ServerVerdict `json:"serverCache,omitempty"`
	LastServerCheck int64          `json:"lastServerCheck"`
	BoundHardwareID string         `json:"boundHardwareId"`
}

// ErrRecordCorrupt is returned by Load when a stored record exists but
// fails to decrypt or parse. The caller degrades, never crashes.
var ErrRecordCorrupt = errors.New("stored activation record corrupt")

// Store persists the activation record and server verdict cache,
// encrypting the record with a key rederived from the machine
// fingerprint on every operation. A single mutex serializes access;
// one license file belongs to one installation.
type Store struct {
	path   string
	keys   *security.Generator
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, keys *security.Generator, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		keys:   keys,
		logger: logger.With(slog.String("component", "license_store")),
	}
}

// Path returns the location of the license file.
func (s *Store) Path() string {
	return s.path
}

// Save encrypts and persists the activation record, preserving any
// cached verdict and last-check timestamp already on disk.
func (s *Store) Save(record *ActivationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal activation record: %w", err)
	}

	key, err := security.DeriveStoreKey(s.keys.Fingerprint())
	if err != nil {
		return fmt.Errorf("derive store key: %w", err)
	}

	blob, err := security.EncryptBlob(key, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt activation record: %w", err)
	}

	state := s.readFile()
	state.LicenseData = blob
	state.BoundHardwareID = record.Fingerprint
	if err := s.writeFile(state); err != nil {
		return err
	}

	s.logger.Info("activation record saved",
		slog.String("path", s.path),
		slog.String("product", record.ProductCode),
	)
	return nil
}

// Load decrypts and returns the stored activation record. A missing
// file or empty blob yields (nil, nil). A blob that fails to decrypt or
// parse yields ErrRecordCorrupt after a diagnostic backup of the file
// has been written next to it.
func (s *Store) Load() (*ActivationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.readFile()
	if state.LicenseData == "" {
		return nil, nil
	}

	key, err := security.DeriveStoreKey(s.keys.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}

	plaintext, err := security.DecryptBlob(key, state.LicenseData)
	if err != nil {
		s.backupCorrupt()
		return nil, ErrRecordCorrupt
	}

	var record ActivationRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		s.backupCorrupt()
		return nil, ErrRecordCorrupt
	}
	return &record, nil
}

// Has reports whether an activation record blob is present, without
// attempting to decrypt it.
func (s *Store) Has() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFile().LicenseData != ""
}

// ClearActivation removes the activation record but deliberately keeps
// the verdict cache and last-check timestamp: anti-tamper evidence
// survives a local reset.
func (s *Store) ClearActivation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.readFile()
	state.LicenseData = ""
	state.BoundHardwareID = ""
	if err := s.writeFile(state); err != nil {
		return err
	}

	s.logger.Info("activation record cleared", slog.String("path", s.path))
	return nil
}

// ClearAll removes the license file entirely, cache included.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove license file: %w", err)
	}
	return nil
}

// SaveVerdict overwrites the cached server verdict.
func (s *Store) SaveVerdict(verdict *ServerVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.readFile()
	state.ServerCache = verdict
	return s.writeFile(state)
}

// LoadVerdict returns the cached server verdict, or nil when no verdict
// has been cached yet.
func (s *Store) LoadVerdict() *ServerVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFile().ServerCache
}

// LastCheck returns the timestamp of the last successful server check.
// The zero time means no check has succeeded yet.
func (s *Store) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.readFile()
	if state.LastServerCheck == 0 {
		return time.Time{}
	}
	return time.UnixMilli(state.LastServerCheck)
}

// TouchLastCheck records a successful server check. This timestamp is
// the anchor for backward clock detection.
func (s *Store) TouchLastCheck(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.readFile()
	state.LastServerCheck = at.UnixMilli()
	return s.writeFile(state)
}

// readFile loads the on-disk state, degrading to an empty state when
// the file is missing or its outer JSON is unreadable. Unreadable files
// get a diagnostic backup first.
func (s *Store) readFile() *storeFile {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("license file unreadable",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return &storeFile{}
	}

	var state storeFile
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("license file malformed, treating installation as unactivated",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		s.backupCorrupt()
		return &storeFile{}
	}
	return &state
}

func (s *Store) writeFile(state *storeFile) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal license file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create license directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write license file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace license file: %w", err)
	}
	return nil
}

// backupCorrupt copies the current file aside for diagnosis. The
// original is never silently deleted without this backup existing.
func (s *Store) backupCorrupt() {
	backup := s.path + ".corrupt"
	if _, err := os.Stat(backup); err == nil {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		s.logger.Warn("could not write corrupt-file backup",
			slog.String("path", backup),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("corrupt license data backed up for diagnosis",
		slog.String("backup", backup),
	)
}
