package license

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// keyAlphabet is the fixed 36-character charset for every key segment
// and for the base-36 encoding of embedded integers.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	segmentLength       = 4
	productCodeLength   = 4
	fragmentLength      = 8
	postBindingSegments = 4
	preBindingSegments  = 6
)

// Expiry dates are encoded as days-since-Unix-epoch divided by ten, so
// a key's lifetime is quantized to ten-day steps.
const expiryDayQuantum = 10

// Sane bound for decoded expiry dates. A key outside this window is
// corrupt, not merely expired.
var (
	expiryEpoch      = time.Unix(0, 0).UTC()
	expiryLowerBound = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	expiryUpperBound = time.Date(2100, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// BindingMode selects how a license key is tied to a machine.
type BindingMode string

const (
	// PostBinding keys carry no machine affinity; the server binds the
	// key to a fingerprint at first activation.
	PostBinding BindingMode = "post"
	// PreBinding keys embed an expiry date and a fragment of the target
	// machine fingerprint at generation time.
	PreBinding BindingMode = "pre"
)

// Segments returns the dash-separated segment count for the mode.
func (m BindingMode) Segments() int {
	if m == PreBinding {
		return preBindingSegments
	}
	return postBindingSegments
}

// DecodedKey holds the structured fields recovered from a license key.
type DecodedKey struct {
	ProductCode         string
	Mode                BindingMode
	Expiry              time.Time // zero for post-binding keys
	FingerprintFragment string    // empty for post-binding keys
}

// Codec encodes and validates license keys for a single product. It is
// pure: no I/O, and randomness only inside Generate.
type Codec struct {
	secret      []byte
	productCode string
}

// NewCodec creates a codec keyed by the build-time checksum secret and
// bound to the compiled-in product code.
func NewCodec(secret []byte, productCode string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("codec secret must not be empty")
	}
	productCode = strings.ToUpper(strings.TrimSpace(productCode))
	if len(productCode) != productCodeLength || !isAlphabetString(productCode) {
		return nil, fmt.Errorf("product code must be %d characters of %s", productCodeLength, keyAlphabet)
	}
	return &Codec{secret: secret, productCode: productCode}, nil
}

// ProductCode returns the compiled-in product code the codec accepts.
func (c *Codec) ProductCode() string {
	return c.productCode
}

// Generate creates a new license key. For PreBinding mode both expiry
// and boundFingerprint are required; for PostBinding both are ignored.
// Generation is an offline admin operation, never invoked at runtime.
func (c *Codec) Generate(mode BindingMode, expiry time.Time, boundFingerprint string) (string, error) {
	random, err := randomSegmentChars(8)
	if err != nil {
		return "", err
	}

	// Product code split across the first two segments.
	segments := []string{
		c.productCode[:2] + random[:2],
		random[2:4] + c.productCode[2:],
	}

	switch mode {
	case PostBinding:
		segments = append(segments, random[4:8])
	case PreBinding:
		// The quantized date is what the key will carry; validating it
		// here guarantees Decode accepts every key Generate emits.
		quantized := quantizeExpiry(expiry)
		if expiry.Before(expiryLowerBound) || quantized.After(expiryUpperBound) {
			return "", fmt.Errorf("expiry %s outside supported range", expiry.Format("2006-01-02"))
		}
		boundFingerprint = strings.ToUpper(strings.TrimSpace(boundFingerprint))
		if len(boundFingerprint) < fragmentLength || !isAlphabetString(boundFingerprint[:fragmentLength]) {
			return "", fmt.Errorf("bound fingerprint must provide at least %d charset characters", fragmentLength)
		}
		segments = append(segments,
			encodeExpiry(quantized),
			boundFingerprint[:4],
			boundFingerprint[4:8],
		)
	default:
		return "", fmt.Errorf("unknown binding mode %q", mode)
	}

	segments = append(segments, c.checksum(segments))
	return strings.Join(segments, "-"), nil
}

// Decode validates a candidate key and extracts its embedded fields.
// Each step short-circuits: format, charset, checksum, product code,
// then (pre-binding only) expiry sanity and fingerprint fragment.
// A merely expired key still decodes successfully; expiry policy
// belongs to the Manager.
func (c *Codec) Decode(candidate string) (*DecodedKey, error) {
	normalized := strings.ToUpper(strings.TrimSpace(candidate))
	segments := strings.Split(normalized, "-")

	var mode BindingMode
	switch len(segments) {
	case postBindingSegments:
		mode = PostBinding
	case preBindingSegments:
		mode = PreBinding
	default:
		return nil, fmt.Errorf("%w: expected %d or %d segments, got %d",
			ErrKeyFormat, postBindingSegments, preBindingSegments, len(segments))
	}

	for _, segment := range segments {
		if len(segment) != segmentLength || !isAlphabetString(segment) {
			return nil, fmt.Errorf("%w: segment %q", ErrKeyFormat, segment)
		}
	}

	payload := segments[:len(segments)-1]
	if c.checksum(payload) != segments[len(segments)-1] {
		return nil, ErrKeyChecksum
	}

	productCode := segments[0][:2] + segments[1][2:]
	if productCode != c.productCode {
		return nil, fmt.Errorf("%w: key is for %q", ErrKeyProduct, productCode)
	}

	decoded := &DecodedKey{ProductCode: productCode, Mode: mode}
	if mode == PreBinding {
		expiry, err := decodeExpiry(segments[2])
		if err != nil {
			return nil, err
		}
		decoded.Expiry = expiry
		decoded.FingerprintFragment = segments[3] + segments[4]
	}
	return decoded, nil
}

// checksum computes the trailing segment over the concatenation of the
// preceding segments: truncated HMAC-SHA256 re-encoded in the key
// alphabet and left-padded to segment width.
func (c *Codec) checksum(segments []string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(strings.Join(segments, "")))
	digest := hex.EncodeToString(mac.Sum(nil))

	value, _ := strconv.ParseUint(digest[:4], 16, 32)
	return encodeBase36(value, segmentLength)
}

// quantizeExpiry rounds the expiry up to the next ten-day step, so a
// key never expires before the date it was generated for.
func quantizeExpiry(expiry time.Time) time.Time {
	days := int64(expiry.UTC().Sub(expiryEpoch).Hours() / 24)
	steps := (days + expiryDayQuantum - 1) / expiryDayQuantum
	return expiryEpoch.AddDate(0, 0, int(steps)*expiryDayQuantum)
}

func encodeExpiry(expiry time.Time) string {
	days := int64(expiry.UTC().Sub(expiryEpoch).Hours() / 24)
	return encodeBase36(uint64(days/expiryDayQuantum), segmentLength)
}

func decodeExpiry(segment string) (time.Time, error) {
	value, err := decodeBase36(segment)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expiry segment", ErrKeyCorrupt)
	}
	expiry := expiryEpoch.AddDate(0, 0, int(value)*expiryDayQuantum)
	if expiry.Before(expiryLowerBound) || expiry.After(expiryUpperBound) {
		return time.Time{}, fmt.Errorf("%w: expiry %s outside supported range",
			ErrKeyCorrupt, expiry.Format("2006-01-02"))
	}
	return expiry, nil
}

func encodeBase36(value uint64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = keyAlphabet[value%36]
		value /= 36
	}
	return string(buf)
}

func decodeBase36(s string) (uint64, error) {
	var value uint64
	for _, char := range s {
		idx := strings.IndexRune(keyAlphabet, char)
		if idx < 0 {
			return 0, fmt.Errorf("character %q outside alphabet", char)
		}
		value = value*36 + uint64(idx)
	}
	return value, nil
}

func isAlphabetString(s string) bool {
	for _, char := range s {
		if !strings.ContainsRune(keyAlphabet, char) {
			return false
		}
	}
	return s != ""
}

func randomSegmentChars(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate key randomness: %w", err)
		}
		buf[i] = keyAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
