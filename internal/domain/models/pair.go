package models

import (
	"fmt"
	"strings"
)

// PairKey is an unordered symbol pair normalized so that A <= B.
type PairKey struct {
	A string
	B string
}

// NewPairKey returns the canonical key for the pair (x, y).
func NewPairKey(x, y string) PairKey {
	x, y = strings.ToUpper(x), strings.ToUpper(y)
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

func (k PairKey) String() string { return k.A + "/" + k.B }

// ParseSymbolPair splits "AAA/BBB" (or "AAA-BBB", "AAA,BBB") preserving order.
// A single symbol yields second == "".
func ParseSymbolPair(s string) (first, second string, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", "", fmt.Errorf("symbol pair is empty")
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == ',' })
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		if parts[0] == parts[1] {
			return "", "", fmt.Errorf("symbol pair %q repeats %s", s, parts[0])
		}
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("symbol pair %q must name one or two symbols", s)
	}
}
