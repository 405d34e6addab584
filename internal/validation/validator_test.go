package validation_test

import (
	"strings"
	"testing"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/validation"
	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	v := validation.NewValidator()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"plain key", "user_key", false},
		{"metadata key", metadata.ReplicationKey("k"), false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"nul byte", "a\x00b", true},
		{"oversized", strings.Repeat("k", validation.MaxKeySize+1), true},
		{"metadata squatter", "ANNA_METADATAX", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePut(t *testing.T) {
	v := validation.NewValidatorWithLimits(64, 16)

	assert.NoError(t, v.ValidatePut("k", lattice.TypeLWW, []byte("small")))
	assert.Error(t, v.ValidatePut("k", lattice.TypeNone, []byte("x")),
		"missing lattice type")
	assert.Error(t, v.ValidatePut("k", lattice.TypeLWW,
		[]byte(strings.Repeat("x", 17))), "oversized payload")
}
