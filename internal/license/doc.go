// Package license implements the activation and validation engine for
// the VC product line.
//
// # Architecture Overview
//
// The engine consists of several components:
//
//	- Codec: license key encoding, decoding and checksum validation
//	- Store: encrypted persistence of the activation record and the
//	  cached server verdict
//	- Client: reconciliation with the remote license authority
//	- Manager: the validity state machine tying the pieces together
//
// # Validation Flow
//
// Every Validate call recomputes the license status from scratch:
//
//	1. Detect backward clock manipulation against the last check time
//	2. Load and decrypt the stored activation record
//	3. Check the hardware binding (pre-binding mode)
//	4. Reconcile with the license server when reachable
//	5. Fall back to the cached verdict under the offline tolerance
//	   window when the server is not reachable
//	6. Apply local expiry and grace period arithmetic
//
// The status is never persisted; it is a pure function of the record,
// the verdict cache and the current clock.
//
// # Binding Modes
//
// Two key shapes are supported. Post-binding keys carry no machine
// affinity and are bound server-side at first activation. Pre-binding
// keys embed an expiry date and the first eight characters of the
// target machine fingerprint, which the engine checks locally before
// any network call.
package license
