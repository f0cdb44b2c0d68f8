package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// fingerprintSalt is mixed into the hash so the fingerprint cannot be
// reproduced from public machine identifiers alone.
const fingerprintSalt = "VC-FP-SALT-7A2E"

// FingerprintLength is the exact length of a generated fingerprint.
const FingerprintLength = 32

// memoryRoundingBytes rounds total RAM to the nearest 4 GiB so small
// reporting differences across reboots do not change the fingerprint.
const memoryRoundingBytes = 4 << 30

// Generator derives a stable hardware fingerprint for the local machine.
// The fingerprint is computed once and memoized for the process lifetime.
type Generator struct {
	once        sync.Once
	fingerprint string
	components  map[string]string
}

// NewGenerator creates a fingerprint generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Fingerprint returns the 32-character uppercase machine fingerprint.
// Individual hardware probes degrade to an empty string on failure; the
// result is always well-formed even on heavily sandboxed hosts.
func (g *Generator) Fingerprint() string {
	g.once.Do(g.generate)
	return g.fingerprint
}

// Components returns the raw probe values for diagnostics. Values may be
// empty when the corresponding probe failed.
func (g *Generator) Components() map[string]string {
	g.once.Do(g.generate)
	out := make(map[string]string, len(g.components))
	for k, v := range g.components {
		out[k] = v
	}
	return out
}

// Matches reports whether the stored fingerprint belongs to this machine.
func (g *Generator) Matches(stored string) bool {
	return g.Fingerprint() == strings.ToUpper(strings.TrimSpace(stored))
}

func (g *Generator) generate() {
	machineID := probeMachineID()
	cpuModel := probeCPUModel()
	hostname := probeHostname()
	memory := probeRoundedMemory()

	combined := strings.Join([]string{machineID, cpuModel, hostname, memory}, "|") + fingerprintSalt
	sum := sha256.Sum256([]byte(combined))
	g.fingerprint = strings.ToUpper(hex.EncodeToString(sum[:]))[:FingerprintLength]
	g.components = map[string]string{
		"machine_id": machineID,
		"cpu_model":  cpuModel,
		"hostname":   hostname,
		"memory":     memory,
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}

	slog.Debug("hardware fingerprint generated",
		slog.String("fingerprint", g.fingerprint),
		slog.String("hostname", hostname),
		slog.String("os", runtime.GOOS),
	)
}

// probeMachineID reads the platform machine identifier. Returns "" when
// the identifier is unavailable.
func probeMachineID() string {
	switch runtime.GOOS {
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if data, err := os.ReadFile(path); err == nil {
				if id := strings.TrimSpace(string(data)); id != "" {
					return id
				}
			}
		}
	case "windows":
		// MachineGuid mirrored into the environment by the installer.
		if id := os.Getenv("VC_MACHINE_GUID"); id != "" {
			return id
		}
	case "darwin":
		if data, err := os.ReadFile("/var/db/SystemKey"); err == nil && len(data) > 0 {
			sum := sha256.Sum256(data)
			return hex.EncodeToString(sum[:8])
		}
	}
	slog.Warn("machine identifier unavailable", slog.String("os", runtime.GOOS))
	return ""
}

// probeCPUModel returns the CPU model string, or "" if it cannot be read.
func probeCPUModel() string {
	switch runtime.GOOS {
	case "linux":
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") {
					if _, value, ok := strings.Cut(line, ":"); ok {
						return strings.TrimSpace(value)
					}
				}
			}
		}
	case "windows":
		if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
			return id
		}
	}
	// Architecture is a weak but stable stand-in on other platforms.
	return runtime.GOARCH
}

func probeHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		slog.Warn("hostname probe failed", slog.String("error", err.Error()))
		return ""
	}
	return strings.ToLower(strings.TrimSpace(hostname))
}

// probeRoundedMemory returns total RAM rounded to the nearest 4 GiB, as a
// decimal byte count string. RAM upgrades within rounding tolerance keep
// the fingerprint stable.
func probeRoundedMemory() string {
	total := probeTotalMemory()
	if total == 0 {
		return ""
	}
	rounded := (total + memoryRoundingBytes/2) / memoryRoundingBytes * memoryRoundingBytes
	return strconv.FormatUint(rounded, 10)
}

func probeTotalMemory() uint64 {
	if runtime.GOOS != "linux" {
		return 0
	}
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
