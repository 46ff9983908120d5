// Package core defines the shared domain model of the decision pipeline:
// inbound events, versioned conversations, stage result contracts, the
// hash-linked audit event, the error taxonomy and the store interfaces
// implemented by the sibling packages.
//
// Types in this package are plain values with no I/O; everything that talks
// to a store or the reasoning backend lives in the packages that consume
// these contracts (fingerprint, conversation, audit, abuse, pipeline,
// dispatch, processor).
package core
