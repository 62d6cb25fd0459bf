package filter

import (
	"errors"
	"strings"
)

// Parser errors
var (
	ErrEmptyFilter      = errors.New("filter: empty filter")
	ErrInvalidFilter    = errors.New("filter: invalid filter syntax")
	ErrUnbalancedParens = errors.New("filter: unbalanced parentheses")
	ErrMissingAttribute = errors.New("filter: missing attribute name")
)

// Parse parses an RFC 4515 filter string into a Filter structure.
// Supported forms:
//   - (attr=value)     - equality
//   - (attr=*)         - presence
//   - (attr=*val*)     - substring
//   - (attr>=value)    - greater or equal
//   - (attr<=value)    - less or equal
//   - (attr~=value)    - approximate match
//   - (&(f1)(f2)...)   - AND
//   - (|(f1)(f2)...)   - OR
//   - (!(filter))      - NOT
func Parse(filterStr string) (*Filter, error) {
	filterStr = strings.TrimSpace(filterStr)
	if filterStr == "" {
		return nil, ErrEmptyFilter
	}
	return parseFilter(filterStr)
}

func parseFilter(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyFilter
	}

	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		// Bare "attr=value" is accepted for convenience.
		if strings.Contains(s, "(") {
			return nil, ErrInvalidFilter
		}
		s = "(" + s + ")"
	}

	inner := s[1 : len(s)-1]
	if inner == "" {
		return nil, ErrEmptyFilter
	}

	switch inner[0] {
	case '&':
		return parseComposite(inner[1:], NewAndFilter)
	case '|':
		return parseComposite(inner[1:], NewOrFilter)
	case '!':
		child, err := parseFilter(inner[1:])
		if err != nil {
			return nil, err
		}
		return NewNotFilter(child), nil
	default:
		return parseSimpleFilter(inner)
	}
}

func parseComposite(s string, build func(...*Filter) *Filter) (*Filter, error) {
	children, err := parseFilterList(s)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, ErrInvalidFilter
	}
	return build(children...), nil
}

func parseFilterList(s string) ([]*Filter, error) {
	var filters []*Filter
	s = strings.TrimSpace(s)

	for len(s) > 0 {
		if s[0] != '(' {
			return nil, ErrInvalidFilter
		}

		depth := 0
		end := -1
		for i, c := range s {
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					end = i
					break
				}
			}
		}
		if end == -1 {
			return nil, ErrUnbalancedParens
		}

		f, err := parseFilter(s[:end+1])
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
		s = strings.TrimSpace(s[end+1:])
	}

	return filters, nil
}

func parseSimpleFilter(s string) (*Filter, error) {
	// Two-character operators bind before plain equality.
	ops := []struct {
		token string
		build func(string, []byte) *Filter
	}{
		{">=", NewGreaterOrEqualFilter},
		{"<=", NewLessOrEqualFilter},
		{"~=", NewApproxMatchFilter},
	}
	for _, op := range ops {
		if idx := strings.Index(s, op.token); idx > 0 {
			attr := strings.TrimSpace(s[:idx])
			if attr == "" {
				return nil, ErrMissingAttribute
			}
			return op.build(attr, []byte(s[idx+len(op.token):])), nil
		}
	}

	idx := strings.Index(s, "=")
	if idx <= 0 {
		return nil, ErrInvalidFilter
	}
	attr := strings.TrimSpace(s[:idx])
	if attr == "" {
		return nil, ErrMissingAttribute
	}
	value := s[idx+1:]

	switch {
	case value == "*":
		return NewPresentFilter(attr), nil
	case strings.Contains(value, "*"):
		return parseSubstringFilter(attr, value)
	default:
		return NewEqualityFilter(attr, []byte(value)), nil
	}
}

func parseSubstringFilter(attr, value string) (*Filter, error) {
	parts := strings.Split(value, "*")
	sf := &SubstringFilter{Attribute: attr}

	// parts[0] precedes the first star; parts[len-1] follows the last.
	// Either may be empty when the pattern starts or ends with a star.
	if parts[0] != "" {
		sf.Initial = []byte(parts[0])
	}
	if last := parts[len(parts)-1]; last != "" {
		sf.Final = []byte(last)
	}
	for _, part := range parts[1 : len(parts)-1] {
		if part != "" {
			sf.Any = append(sf.Any, []byte(part))
		}
	}

	return NewSubstringFilter(sf), nil
}
