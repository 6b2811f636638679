package models

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique session ID with the "sess_" prefix
// Format: sess_<uuid>
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewRunID generates a unique CLI run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}
