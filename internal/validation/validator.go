// Package validation screens inbound tuples before they reach the store.
package validation

import (
	"strings"

	"github.com/hydro-project/anna/internal/errors"
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
)

const (
	MaxKeySize   = 1024             // 1 KB
	MaxValueSize = 10 * 1024 * 1024 // 10 MB
)

// Validator validates request tuples.
type Validator struct {
	maxKeySize   int
	maxValueSize int
}

// NewValidator creates a validator with default limits.
func NewValidator() *Validator {
	return &Validator{maxKeySize: MaxKeySize, maxValueSize: MaxValueSize}
}

// NewValidatorWithLimits creates a validator with custom limits.
func NewValidatorWithLimits(maxKeySize, maxValueSize int) *Validator {
	return &Validator{maxKeySize: maxKeySize, maxValueSize: maxValueSize}
}

// ValidateKey checks a key against the size limit and the characters the
// file-per-key disk backend cannot store.
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidKey(key, "key cannot be empty")
	}
	if len(key) > v.maxKeySize {
		return errors.InvalidKey(key, "key exceeds maximum size")
	}
	if strings.ContainsAny(key, "/\x00") {
		return errors.InvalidKey(key, "key contains reserved characters")
	}
	// data keys must not squat on the metadata key-space
	if strings.HasPrefix(key, metadata.Identifier) && !metadata.IsMetadata(key) {
		return errors.InvalidKey(key, "key collides with the metadata identifier")
	}
	return nil
}

// ValidatePut checks a PUT tuple: key, declared lattice type and payload
// size.
func (v *Validator) ValidatePut(key string, lt lattice.Type, payload []byte) error {
	if err := v.ValidateKey(key); err != nil {
		return err
	}
	if lt == lattice.TypeNone {
		return errors.MissingLatticeType(key)
	}
	if len(payload) > v.maxValueSize {
		return errors.ValueTooLarge(len(payload), v.maxValueSize)
	}
	return nil
}
