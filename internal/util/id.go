// Package util provides small internal helpers shared across packages:
// identifier generation and canonical JSON encoding.
package util

import "github.com/google/uuid"

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }
