package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for turns and synthetic tool calls.
func NewID() string { return uuid.NewString() }

// StringPtr returns a pointer to s. Handy for optional Turn content.
func StringPtr(s string) *string { return &s }
