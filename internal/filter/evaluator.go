package filter

import (
	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
)

// Result is the three-valued outcome of applying a filter to an entry.
type Result int

const (
	// ResultFalse means the entry does not match.
	ResultFalse Result = iota
	// ResultTrue means the entry matches.
	ResultTrue
	// ResultUndefined means the filter could not be evaluated against
	// the entry. Undefined never selects an entry.
	ResultUndefined
)

// String returns the string representation of the Result.
func (r Result) String() string {
	switch r {
	case ResultFalse:
		return "FALSE"
	case ResultTrue:
		return "TRUE"
	case ResultUndefined:
		return "UNDEFINED"
	default:
		return "UNKNOWN"
	}
}

// Matches reports whether the entry matches the filter. Undefined counts
// as a non-match.
func Matches(f *Filter, entry *cache.Entry) bool {
	return Evaluate(f, entry) == ResultTrue
}

// Evaluate applies a filter to an entry.
func Evaluate(f *Filter, entry *cache.Entry) Result {
	if f == nil || entry == nil {
		return ResultUndefined
	}

	switch f.Type {
	case FilterAnd:
		return evaluateAnd(f, entry)
	case FilterOr:
		return evaluateOr(f, entry)
	case FilterNot:
		return evaluateNot(f, entry)
	case FilterEquality:
		return evaluateValues(f.Attribute, entry, func(v []byte) bool {
			return matchEquality(v, f.Value)
		})
	case FilterSubstring:
		return evaluateSubstring(f.Substring, entry)
	case FilterPresent:
		if len(entry.GetAttribute(f.Attribute)) > 0 {
			return ResultTrue
		}
		return ResultFalse
	case FilterGreaterOrEqual:
		return evaluateValues(f.Attribute, entry, func(v []byte) bool {
			return matchGreaterOrEqual(v, f.Value)
		})
	case FilterLessOrEqual:
		return evaluateValues(f.Attribute, entry, func(v []byte) bool {
			return matchLessOrEqual(v, f.Value)
		})
	case FilterApproxMatch:
		return evaluateValues(f.Attribute, entry, func(v []byte) bool {
			return matchApprox(v, f.Value)
		})
	default:
		// Extensible match and anything unrecognized.
		return ResultUndefined
	}
}

// evaluateAnd is True when every child is True, False when any child is
// False, and Undefined otherwise. An empty AND is vacuously True.
func evaluateAnd(f *Filter, entry *cache.Entry) Result {
	out := ResultTrue
	for _, child := range f.Children {
		switch Evaluate(child, entry) {
		case ResultFalse:
			return ResultFalse
		case ResultUndefined:
			out = ResultUndefined
		}
	}
	return out
}

// evaluateOr is True when any child is True, False when every child is
// False, and Undefined otherwise. An empty OR matches nothing.
func evaluateOr(f *Filter, entry *cache.Entry) Result {
	out := ResultFalse
	for _, child := range f.Children {
		switch Evaluate(child, entry) {
		case ResultTrue:
			return ResultTrue
		case ResultUndefined:
			out = ResultUndefined
		}
	}
	return out
}

// evaluateNot swaps True and False; Undefined stays Undefined.
func evaluateNot(f *Filter, entry *cache.Entry) Result {
	if f.Child == nil {
		return ResultUndefined
	}
	switch Evaluate(f.Child, entry) {
	case ResultTrue:
		return ResultFalse
	case ResultFalse:
		return ResultTrue
	default:
		return ResultUndefined
	}
}

func evaluateSubstring(sf *SubstringFilter, entry *cache.Entry) Result {
	if sf == nil {
		return ResultUndefined
	}
	return evaluateValues(sf.Attribute, entry, func(v []byte) bool {
		return matchSubstring(v, sf.Initial, sf.Any, sf.Final)
	})
}

// evaluateValues applies a value predicate across an attribute's values.
// A missing attribute evaluates to False, not Undefined.
func evaluateValues(attr string, entry *cache.Entry, match func([]byte) bool) Result {
	for _, v := range entry.GetAttribute(attr) {
		if match(v) {
			return ResultTrue
		}
	}
	return ResultFalse
}
