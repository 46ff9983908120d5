// Package fingerprint derives deterministic identities for inbound and
// outbound units of work and provides the at-most-once admission store
// keyed by them. Admission is monotonic: once a fingerprint is consumed it
// is never re-admitted within its TTL window.
package fingerprint
