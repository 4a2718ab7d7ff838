// Package domain holds the identifier types parsed at trust boundaries.
package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"

	dErrors "openletter/pkg/domain-errors"
)

// MaxNationNameLength is the longest name the game allows.
const MaxNationNameLength = 40

// NationName is a validated, whitespace-trimmed nation display name. Case is
// preserved for display; Key gives the natural key.
type NationName string

func (n NationName) String() string {
	return string(n)
}

// NationKey folds a nation name to the form the game treats as identical:
// trimmed, lower case, spaces as underscores. Signatures and cache entries
// are matched on it, and the API takes it in nation= parameters.
func NationKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Key returns NationKey(n).
func (n NationName) Key() string {
	return NationKey(string(n))
}

// ParseNationName trims s and rejects names the game could not have issued.
func ParseNationName(s string) (NationName, error) {
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nation name must be valid UTF-8")
	}
	name := strings.TrimSpace(s)
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nation name is required")
	}
	if len(name) > MaxNationNameLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nation name is too long")
	}
	for _, r := range name {
		if !validNameRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "nation name contains invalid characters")
		}
	}
	return NationName(name), nil
}

func validNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '_':
		return true
	}
	return false
}

// SignatureID is the opaque numeric identity of a signature row.
type SignatureID int64

func (id SignatureID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseSignatureID parses a positive decimal id, typically from a URL path.
func ParseSignatureID(s string) (SignatureID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "signature id is required")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid signature id")
	}
	return SignatureID(v), nil
}
