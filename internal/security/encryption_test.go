package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveStoreKey("ABCDEF0123456789ABCDEF0123456789")
	require.NoError(t, err)
	return key
}

func TestDeriveStoreKey(t *testing.T) {
	key := testKey(t)
	require.Len(t, key, 32)

	again, err := DeriveStoreKey("ABCDEF0123456789ABCDEF0123456789")
	require.NoError(t, err)
	require.Equal(t, key, again, "derivation must be deterministic")

	other, err := DeriveStoreKey("00000000000000000000000000000000")
	require.NoError(t, err)
	require.NotEqual(t, key, other, "different fingerprints must yield different keys")
}

func TestDeriveStoreKeyEmptyFingerprint(t *testing.T) {
	_, err := DeriveStoreKey("")
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte(`{"license_key":"AAAA-BBBB-CCCC-DDDD"}`)

	blob, err := EncryptBlob(key, plaintext)
	require.NoError(t, err)

	decrypted, err := DecryptBlob(key, blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEncryptBlobNoncesDiffer(t *testing.T) {
	key := testKey(t)

	first, err := EncryptBlob(key, []byte("payload"))
	require.NoError(t, err)
	second, err := EncryptBlob(key, []byte("payload"))
	require.NoError(t, err)

	require.NotEqual(t, first, second, "random nonce must vary per blob")
}

func TestDecryptBlobTampered(t *testing.T) {
	key := testKey(t)

	blob, err := EncryptBlob(key, []byte("payload"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) string
	}{
		{
			name: "flipped ciphertext byte",
			mutate: func(b []byte) string {
				b[len(b)-1] ^= 0x01
				return base64.StdEncoding.EncodeToString(b)
			},
		},
		{
			name: "flipped tag byte",
			mutate: func(b []byte) string {
				b[BlobNonceSize] ^= 0x01
				return base64.StdEncoding.EncodeToString(b)
			},
		},
		{
			name: "truncated blob",
			mutate: func(b []byte) string {
				return base64.StdEncoding.EncodeToString(b[:BlobNonceSize+BlobTagSize-1])
			},
		},
		{
			name: "not base64",
			mutate: func(b []byte) string {
				return "%%%not-base64%%%"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupted := make([]byte, len(raw))
			copy(corrupted, raw)

			_, err := DecryptBlob(key, tt.mutate(corrupted))
			require.ErrorIs(t, err, ErrBlobCorrupt)
		})
	}
}

func TestDecryptBlobWrongKey(t *testing.T) {
	key := testKey(t)
	blob, err := EncryptBlob(key, []byte("payload"))
	require.NoError(t, err)

	wrongKey, err := DeriveStoreKey("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")
	require.NoError(t, err)

	_, err = DecryptBlob(wrongKey, blob)
	require.ErrorIs(t, err, ErrBlobCorrupt)
}
