package domain

import (
	"strings"
	"unicode/utf8"
)

// MinReferenceLength is the shortest reference accepted for a lookup.
const MinReferenceLength = 14

// Reference is a normalized cadastral reference (trimmed, upper case).
type Reference string

// String returns the reference as typed after normalization.
func (r Reference) String() string { return string(r) }

// Len returns the length in characters, not bytes.
func (r Reference) Len() int { return utf8.RuneCountInString(string(r)) }

// Normalize trims surrounding whitespace and upper-cases raw input.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(raw string) Reference {
	return Reference(strings.ToUpper(strings.TrimSpace(raw)))
}

// Validate reports whether ref can be sent to the backend.
func Validate(ref Reference) error {
	if ref.Len() < MinReferenceLength {
		return &InvalidReferenceError{Reference: ref}
	}
	return nil
}

// ParseReference normalizes and validates raw input in one step.
func ParseReference(raw string) (Reference, error) {
	ref := Normalize(raw)
	if err := Validate(ref); err != nil {
		return "", err
	}
	return ref, nil
}
