package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventroster/backend/internal/apperror"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"valid", "0123456789abcdef0123456789abcdef", true},
		{"uppercase hex", "0123456789ABCDEF0123456789ABCDEF", false},
		{"too short", "0123456789abcdef", false},
		{"too long", "0123456789abcdef0123456789abcdef00", false},
		{"non hex", "0123456789abcdef0123456789abcdeg", false},
		{"empty", "", false},
		{"free text", "Invalid id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrInvalidEventID))
			assert.Equal(t, "Invalid event ID", err.Error())
		})
	}
}

func TestValidateMemberID_Message(t *testing.T) {
	err := ValidateMemberID("Invalid member id")
	require.Error(t, err)
	assert.Equal(t, "Invalid member ID", err.Error())
	assert.Equal(t, apperror.CodeInvalidIdentifier, apperror.CodeOf(err))
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"ada@example.com", "a@b", "  ada@example.com  ", "first.last+tag@sub.example.org"}
	for _, s := range valid {
		assert.NoError(t, ValidateEmail(s), s)
	}

	invalid := []string{"", "invalidEmail", "@example.com", "ada@", "a@b@c", "ada lovelace@example.com"}
	for _, s := range invalid {
		err := ValidateEmail(s)
		require.Error(t, err, s)
		assert.True(t, errors.Is(err, apperror.ErrInvalidEmail), s)
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Ada Lovelace"))
	assert.NoError(t, ValidateName(" x "))

	for _, s := range []string{"", "   ", "\t\n"} {
		err := ValidateName(s)
		require.Error(t, err)
		assert.Equal(t, "Invalid name", err.Error())
	}
}

func TestNormalizeName(t *testing.T) {
	// "é" as e + combining acute accent vs the precomposed rune.
	decomposed := "Rene\u0301e "
	precomposed := "Ren\u00e9e"
	assert.Equal(t, precomposed, NormalizeName(decomposed))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}
