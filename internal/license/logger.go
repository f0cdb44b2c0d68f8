package license

// MaskKey redacts the middle of a license key so logs never contain a
// usable key. Short inputs are fully masked.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
