// Package util holds small shared helpers.
package util

import "github.com/google/uuid"

// NewID generates a unique identifier for records and requests.
func NewID() string { return uuid.NewString() }
