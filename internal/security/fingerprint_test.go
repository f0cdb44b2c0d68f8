package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintShape(t *testing.T) {
	g := NewGenerator()
	fp := g.Fingerprint()

	require.Len(t, fp, FingerprintLength)
	for _, char := range fp {
		valid := (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9')
		require.True(t, valid, "fingerprint contains invalid character %q", char)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	first := NewGenerator().Fingerprint()
	second := NewGenerator().Fingerprint()

	require.Equal(t, first, second, "fingerprint must be stable across instances")
}

func TestFingerprintMemoized(t *testing.T) {
	g := NewGenerator()
	require.Equal(t, g.Fingerprint(), g.Fingerprint())
}

func TestFingerprintMatches(t *testing.T) {
	g := NewGenerator()
	fp := g.Fingerprint()

	require.True(t, g.Matches(fp))
	require.True(t, g.Matches("  "+fp+" "), "stored value should be normalized")
	require.False(t, g.Matches("0123456789ABCDEF0123456789ABCDEF"))
	require.False(t, g.Matches(""))
}

func TestFingerprintComponents(t *testing.T) {
	g := NewGenerator()
	components := g.Components()

	require.Contains(t, components, "machine_id")
	require.Contains(t, components, "cpu_model")
	require.Contains(t, components, "hostname")
	require.Contains(t, components, "memory")

	// Mutating the returned map must not affect the generator.
	components["hostname"] = "tampered"
	require.NotEqual(t, "tampered", g.Components()["hostname"])
}
