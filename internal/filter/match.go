package filter

import (
	"bytes"
)

// matchEquality performs case-insensitive equality matching. This is the
// default matching behavior for string attributes.
func matchEquality(a, b []byte) bool {
	return bytes.EqualFold(a, b)
}

// matchSubstring checks a value against the initial/any/final components
// of a substring pattern, case-insensitively, consuming the value left to
// right so components cannot overlap.
func matchSubstring(value []byte, initial []byte, any [][]byte, final []byte) bool {
	v := bytes.ToLower(value)

	if len(initial) > 0 {
		if !bytes.HasPrefix(v, bytes.ToLower(initial)) {
			return false
		}
		v = v[len(initial):]
	}

	for _, sub := range any {
		if len(sub) == 0 {
			continue
		}
		idx := bytes.Index(v, bytes.ToLower(sub))
		if idx < 0 {
			return false
		}
		v = v[idx+len(sub):]
	}

	if len(final) > 0 && !bytes.HasSuffix(v, bytes.ToLower(final)) {
		return false
	}
	return true
}

// matchGreaterOrEqual compares case-insensitively using lexicographic
// byte ordering.
func matchGreaterOrEqual(value, threshold []byte) bool {
	return bytes.Compare(bytes.ToLower(value), bytes.ToLower(threshold)) >= 0
}

// matchLessOrEqual compares case-insensitively using lexicographic byte
// ordering.
func matchLessOrEqual(value, threshold []byte) bool {
	return bytes.Compare(bytes.ToLower(value), bytes.ToLower(threshold)) <= 0
}

// matchApprox treats values as approximately equal when they compare
// equal after lowercasing and whitespace collapsing.
func matchApprox(a, b []byte) bool {
	return bytes.Equal(normalizeForApprox(a), normalizeForApprox(b))
}

func normalizeForApprox(value []byte) []byte {
	out := make([]byte, 0, len(value))
	inSpace := false
	for _, c := range bytes.ToLower(value) {
		switch c {
		case ' ', '\t', '\n', '\r':
			if !inSpace {
				out = append(out, ' ')
				inSpace = true
			}
		default:
			out = append(out, c)
			inSpace = false
		}
	}
	return bytes.TrimSpace(out)
}
