package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testCodecSecret = []byte("test-codec-secret")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testCodecSecret, "VC01")
	require.NoError(t, err)
	return codec
}

func TestNewCodecRejectsBadInput(t *testing.T) {
	_, err := NewCodec(nil, "VC01")
	require.Error(t, err)

	_, err = NewCodec(testCodecSecret, "toolongcode")
	require.Error(t, err)

	_, err = NewCodec(testCodecSecret, "vc-1")
	require.Error(t, err)
}

func TestGenerateDecodePostBinding(t *testing.T) {
	codec := newTestCodec(t)

	key, err := codec.Generate(PostBinding, time.Time{}, "")
	require.NoError(t, err)
	require.Len(t, strings.Split(key, "-"), 4)

	decoded, err := codec.Decode(key)
	require.NoError(t, err)
	require.Equal(t, "VC01", decoded.ProductCode)
	require.Equal(t, PostBinding, decoded.Mode)
	require.True(t, decoded.Expiry.IsZero())
	require.Empty(t, decoded.FingerprintFragment)
}

func TestGenerateDecodePreBinding(t *testing.T) {
	codec := newTestCodec(t)
	fingerprint := "A1B2C3D4E5F6A7B8C9D0E1F2A3B4C5D6"
	expiry := time.Date(2027, time.June, 15, 0, 0, 0, 0, time.UTC)

	key, err := codec.Generate(PreBinding, expiry, fingerprint)
	require.NoError(t, err)
	require.Len(t, strings.Split(key, "-"), 6)

	decoded, err := codec.Decode(key)
	require.NoError(t, err)
	require.Equal(t, "VC01", decoded.ProductCode)
	require.Equal(t, PreBinding, decoded.Mode)
	require.Equal(t, fingerprint[:8], decoded.FingerprintFragment)

	// The expiry is quantized to ten-day steps, so allow that much drift.
	require.WithinDuration(t, expiry, decoded.Expiry, 10*24*time.Hour)
}

func TestDecodeNormalizesInput(t *testing.T) {
	codec := newTestCodec(t)

	key, err := codec.Generate(PostBinding, time.Time{}, "")
	require.NoError(t, err)

	decoded, err := codec.Decode("  " + strings.ToLower(key) + "  ")
	require.NoError(t, err)
	require.Equal(t, "VC01", decoded.ProductCode)
}

func TestDecodeExpiredKeyStillValid(t *testing.T) {
	codec := newTestCodec(t)
	fingerprint := "A1B2C3D4E5F6A7B8C9D0E1F2A3B4C5D6"
	expiry := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)

	key, err := codec.Generate(PreBinding, expiry, fingerprint)
	require.NoError(t, err)

	// Expiry policy belongs to the manager; the codec only checks shape.
	decoded, err := codec.Decode(key)
	require.NoError(t, err)
	require.True(t, decoded.Expiry.Before(time.Now()))
}

func TestDecodeFormatErrors(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name      string
		candidate string
	}{
		{"empty", ""},
		{"too few segments", "AAAA-BBBB-CCCC"},
		{"five segments", "AAAA-BBBB-CCCC-DDDD-EEEE"},
		{"short segment", "AAA-BBBB-CCCC-DDDD"},
		{"long segment", "AAAAA-BBBB-CCCC-DDDD"},
		{"invalid charset", "AA!A-BBBB-CCCC-DDDD"},
		{"lowercase only after trim", "aa?a-bbbb-cccc-dddd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.candidate)
			require.ErrorIs(t, err, ErrKeyFormat)
		})
	}
}

func TestDecodeChecksumFlipAnyCharacter(t *testing.T) {
	codec := newTestCodec(t)

	key, err := codec.Generate(PostBinding, time.Time{}, "")
	require.NoError(t, err)

	checksumStart := len(key) - segmentLength
	for i := checksumStart; i < len(key); i++ {
		flipped := []byte(key)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}

		_, err := codec.Decode(string(flipped))
		require.ErrorIs(t, err, ErrKeyChecksum, "flip at position %d must fail checksum", i)
	}
}

func TestDecodeWrongProductDistinctFromChecksum(t *testing.T) {
	codec := newTestCodec(t)

	otherProduct, err := NewCodec(testCodecSecret, "XY99")
	require.NoError(t, err)
	key, err := otherProduct.Generate(PostBinding, time.Time{}, "")
	require.NoError(t, err)

	// Checksum is intact; only the product code differs.
	_, err = codec.Decode(key)
	require.ErrorIs(t, err, ErrKeyProduct)
	require.NotErrorIs(t, err, ErrKeyChecksum)
}

func TestDecodeRejectsWrongSecret(t *testing.T) {
	codec := newTestCodec(t)

	foreign, err := NewCodec([]byte("other-secret"), "VC01")
	require.NoError(t, err)
	key, err := foreign.Generate(PostBinding, time.Time{}, "")
	require.NoError(t, err)

	_, err = codec.Decode(key)
	require.ErrorIs(t, err, ErrKeyChecksum)
}

func TestGenerateExpiryOutOfRange(t *testing.T) {
	codec := newTestCodec(t)
	fingerprint := "A1B2C3D4E5F6A7B8C9D0E1F2A3B4C5D6"

	_, err := codec.Generate(PreBinding, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), fingerprint)
	require.Error(t, err)

	_, err = codec.Generate(PreBinding, time.Date(2101, 1, 1, 0, 0, 0, 0, time.UTC), fingerprint)
	require.Error(t, err)
}

func TestExpiryBoundsRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	fingerprint := "A1B2C3D4E5F6A7B8C9D0E1F2A3B4C5D6"

	// Dates in the first ten-day step above the lower bound must still
	// round-trip: the quantized date rounds up, never below the bound.
	for day := 1; day <= 12; day++ {
		expiry := time.Date(2020, time.January, day, 0, 0, 0, 0, time.UTC)
		key, err := codec.Generate(PreBinding, expiry, fingerprint)
		require.NoError(t, err, "day %d", day)

		decoded, err := codec.Decode(key)
		require.NoError(t, err, "day %d", day)
		require.False(t, decoded.Expiry.Before(expiry),
			"day %d: key expires %s, before the requested %s",
			day, decoded.Expiry.Format("2006-01-02"), expiry.Format("2006-01-02"))
		require.WithinDuration(t, expiry, decoded.Expiry, 10*24*time.Hour)
	}

	// Near the upper bound, generation either refuses the date or emits
	// a key its own Decode accepts; it never does both halves.
	for day := 20; day <= 31; day++ {
		expiry := time.Date(2100, time.December, day, 0, 0, 0, 0, time.UTC)
		key, err := codec.Generate(PreBinding, expiry, fingerprint)
		if err != nil {
			continue
		}
		_, err = codec.Decode(key)
		require.NoError(t, err, "day %d", day)
	}
}

func TestDecodeCorruptExpirySegment(t *testing.T) {
	codec := newTestCodec(t)
	fingerprint := "A1B2C3D4E5F6A7B8C9D0E1F2A3B4C5D6"

	key, err := codec.Generate(PreBinding,
		time.Date(2027, time.June, 15, 0, 0, 0, 0, time.UTC), fingerprint)
	require.NoError(t, err)

	// Swap the expiry segment for one far outside the sane bound and
	// recompute the checksum so only the date check can reject it.
	segments := strings.Split(key, "-")
	segments[2] = "9999"
	segments[5] = codec.checksum(segments[:5])

	_, err = codec.Decode(strings.Join(segments, "-"))
	require.ErrorIs(t, err, ErrKeyCorrupt)
}

func TestGenerateKeysAreUnique(t *testing.T) {
	codec := newTestCodec(t)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		key, err := codec.Generate(PostBinding, time.Time{}, "")
		require.NoError(t, err)
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestBase36RoundTrip(t *testing.T) {
	for _, value := range []uint64{0, 1, 35, 36, 65535, 1679615} {
		encoded := encodeBase36(value, 4)
		require.Len(t, encoded, 4)

		decoded, err := decodeBase36(encoded)
		require.NoError(t, err)
		require.Equal(t, value, decoded)
	}
}
