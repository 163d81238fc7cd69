package suite

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIdentity is returned when an identity string cannot name a test.
var ErrMalformedIdentity = errors.New("malformed test identity")

// Identity is the canonical dotted name of a test: module.Class.method.
// Import failure markers use the bare module name.
type Identity string

// NewIdentity joins the non-empty parts with dots.
func NewIdentity(parts ...string) Identity {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Identity(strings.Join(kept, "."))
}

// String implements fmt.Stringer
func (id Identity) String() string {
	return string(id)
}

// Parts splits the identity into its dotted segments, validating each one.
func (id Identity) Parts() ([]string, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedIdentity)
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if !isIdentifier(p) {
			return nil, fmt.Errorf("%w: %q has invalid segment %q", ErrMalformedIdentity, s, p)
		}
	}
	return parts, nil
}

// Last returns the final dotted segment (the method name for a leaf).
func (id Identity) Last() string {
	s := string(id)
	if idx := strings.LastIndex(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}

// HasPrefix reports whether id equals prefix or lives below it.
func (id Identity) HasPrefix(prefix Identity) bool {
	return id == prefix || strings.HasPrefix(string(id), string(prefix)+".")
}

// isIdentifier checks a Python identifier: letter or underscore, then
// letters, digits or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		case r > 127:
			// Python 3 allows unicode identifiers
		default:
			return false
		}
	}
	return true
}
