// Package security provides the hardware identity and storage crypto
// primitives used by the license engine.
//
// The fingerprint generator derives a stable 32-character machine
// identifier from low-level system properties. The blob crypto wraps
// AES-256-GCM with an scrypt-derived key so the activation record can
// be persisted without ever storing the key material itself.
package security
