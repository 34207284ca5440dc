package keys

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CodeSeparator joins a terminology id and a code.
	CodeSeparator = "/"
	// MappingSeparator joins the source and target code ids of a mapping.
	MappingSeparator = "<-"
)

// ErrMalformedKey is returned for inputs that cannot produce, or do not parse
// as, a canonical key.
var ErrMalformedKey = errors.New("malformed key")

// CodeID identifies one code within one terminology.
type CodeID string

// MappingID identifies a directed edge from a source code to a target code.
type MappingID string

// Normalize applies the normalization rule shared by every key component.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// NewCodeID derives the code id for (terminologyID, code).
func NewCodeID(terminologyID, code string) (CodeID, error) {
	tid := Normalize(terminologyID)
	c := Normalize(code)

	if tid == "" {
		return "", fmt.Errorf("%w: empty terminology id", ErrMalformedKey)
	}
	if strings.Contains(tid, CodeSeparator) {
		return "", fmt.Errorf("%w: terminology id %q contains %q", ErrMalformedKey, tid, CodeSeparator)
	}
	if c == "" {
		return "", fmt.Errorf("%w: empty code in terminology %q", ErrMalformedKey, tid)
	}
	if strings.Contains(c, MappingSeparator) {
		return "", fmt.Errorf("%w: code %q contains %q", ErrMalformedKey, c, MappingSeparator)
	}

	return CodeID(tid + CodeSeparator + c), nil
}

// ParseCodeID splits a code id into its terminology id and code.
func ParseCodeID(id CodeID) (terminologyID, code string, err error) {
	tid, c, ok := strings.Cut(string(id), CodeSeparator)
	if !ok {
		return "", "", fmt.Errorf("%w: code id %q has no %q", ErrMalformedKey, id, CodeSeparator)
	}

	canonical, err := NewCodeID(tid, c)
	if err != nil {
		return "", "", err
	}
	if canonical != id {
		return "", "", fmt.Errorf("%w: code id %q is not canonical", ErrMalformedKey, id)
	}

	return tid, c, nil
}

// NewMappingID derives the mapping id for the edge source -> target.
// Both ids must already be canonical code ids.
func NewMappingID(source, target CodeID) (MappingID, error) {
	if _, _, err := ParseCodeID(source); err != nil {
		return "", fmt.Errorf("mapping source: %w", err)
	}
	if _, _, err := ParseCodeID(target); err != nil {
		return "", fmt.Errorf("mapping target: %w", err)
	}
	return MappingID(string(source) + MappingSeparator + string(target)), nil
}

// ParseMappingID splits a mapping id into its source and target code ids.
// The id must contain exactly one separator.
func ParseMappingID(id MappingID) (source, target CodeID, err error) {
	if n := strings.Count(string(id), MappingSeparator); n != 1 {
		return "", "", fmt.Errorf("%w: mapping id %q has %d separators", ErrMalformedKey, id, n)
	}

	s, t, _ := strings.Cut(string(id), MappingSeparator)
	source, target = CodeID(s), CodeID(t)

	if _, _, err := ParseCodeID(source); err != nil {
		return "", "", fmt.Errorf("mapping source: %w", err)
	}
	if _, _, err := ParseCodeID(target); err != nil {
		return "", "", fmt.Errorf("mapping target: %w", err)
	}

	return source, target, nil
}

// MappingIDFor derives the mapping id for source -> target codes inside one
// terminology.
func MappingIDFor(terminologyID, sourceCode, targetCode string) (MappingID, error) {
	source, err := NewCodeID(terminologyID, sourceCode)
	if err != nil {
		return "", err
	}
	target, err := NewCodeID(terminologyID, targetCode)
	if err != nil {
		return "", err
	}
	return NewMappingID(source, target)
}
