package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/dizin/internal/storage/cache"
)

func personEntry() *cache.Entry {
	e := cache.NewEntry("uid=jsmith,ou=users,dc=example,dc=com")
	e.SetStringAttribute("objectclass", "inetOrgPerson")
	e.SetStringAttribute("uid", "jsmith")
	e.SetStringAttribute("cn", "John Smith")
	e.SetStringAttribute("sn", "Smith")
	e.SetStringAttribute("mail", "jsmith@example.com", "john@example.com")
	return e
}

// =============================================================================
// Parsing
// =============================================================================

func TestParseSimple(t *testing.T) {
	tests := []struct {
		in       string
		wantType FilterType
		wantAttr string
	}{
		{"(cn=John Smith)", FilterEquality, "cn"},
		{"(cn=*)", FilterPresent, "cn"},
		{"(cn=*smi*)", FilterSubstring, "cn"},
		{"(uidNumber>=1000)", FilterGreaterOrEqual, "uidNumber"},
		{"(uidNumber<=2000)", FilterLessOrEqual, "uidNumber"},
		{"(cn~=jon smith)", FilterApproxMatch, "cn"},
		{"cn=bare", FilterEquality, "cn"},
	}

	for _, tt := range tests {
		f, err := Parse(tt.in)
		require.NoError(t, err, "Parse(%q)", tt.in)
		if f.Type != tt.wantType || f.Attribute != tt.wantAttr {
			t.Errorf("Parse(%q) = %s on %q, want %s on %q",
				tt.in, f.Type, f.Attribute, tt.wantType, tt.wantAttr)
		}
	}
}

func TestParseComposite(t *testing.T) {
	f, err := Parse("(&(objectclass=inetOrgPerson)(|(cn=John*)(sn=Smith))(!(uid=root)))")
	require.NoError(t, err)

	require.Equal(t, FilterAnd, f.Type)
	require.Len(t, f.Children, 3)
	require.Equal(t, FilterOr, f.Children[1].Type)
	require.Len(t, f.Children[1].Children, 2)
	require.Equal(t, FilterNot, f.Children[2].Type)
	require.NotNil(t, f.Children[2].Child)
	require.Equal(t, "uid", f.Children[2].Child.Attribute)
}

func TestParseSubstringComponents(t *testing.T) {
	tests := []struct {
		in      string
		initial string
		any     []string
		final   string
	}{
		{"(cn=abc*)", "abc", nil, ""},
		{"(cn=*xyz)", "", nil, "xyz"},
		{"(cn=a*b*c)", "a", []string{"b"}, "c"},
		{"(cn=*mid*)", "", []string{"mid"}, ""},
		{"(cn=a**c)", "a", nil, "c"},
	}

	for _, tt := range tests {
		f, err := Parse(tt.in)
		require.NoError(t, err, "Parse(%q)", tt.in)
		sf := f.Substring
		require.NotNil(t, sf, "Parse(%q)", tt.in)
		require.Equal(t, tt.initial, string(sf.Initial), "initial of %q", tt.in)
		require.Equal(t, tt.final, string(sf.Final), "final of %q", tt.in)
		require.Len(t, sf.Any, len(tt.any), "any of %q", tt.in)
		for i := range tt.any {
			require.Equal(t, tt.any[i], string(sf.Any[i]), "any[%d] of %q", i, tt.in)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrEmptyFilter},
		{"()", ErrEmptyFilter},
		{"(&)", ErrInvalidFilter},
		{"(&(cn=a)", ErrUnbalancedParens},
		{"(=value)", ErrInvalidFilter},
		{"( =value)", ErrMissingAttribute},
	}

	for _, tt := range tests {
		if _, err := Parse(tt.in); err != tt.want {
			t.Errorf("Parse(%q) err = %v, want %v", tt.in, err, tt.want)
		}
	}
}

// =============================================================================
// Evaluation
// =============================================================================

func TestEvaluateSimple(t *testing.T) {
	e := personEntry()

	tests := []struct {
		in   string
		want Result
	}{
		{"(uid=jsmith)", ResultTrue},
		{"(uid=JSMITH)", ResultTrue}, // case-insensitive
		{"(uid=other)", ResultFalse},
		{"(telephoneNumber=555)", ResultFalse}, // missing attribute
		{"(mail=john@example.com)", ResultTrue},
		{"(sn=*)", ResultTrue},
		{"(description=*)", ResultFalse},
		{"(cn=*smi*)", ResultTrue},
		{"(cn=john*h)", ResultTrue},
		{"(cn=x*)", ResultFalse},
		{"(sn>=smith)", ResultTrue},
		{"(sn>=zzz)", ResultFalse},
		{"(sn<=smith)", ResultTrue},
		{"(cn~=john  smith)", ResultTrue},
	}

	for _, tt := range tests {
		f, err := Parse(tt.in)
		require.NoError(t, err, "Parse(%q)", tt.in)
		if got := Evaluate(f, e); got != tt.want {
			t.Errorf("Evaluate(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEvaluateComposite(t *testing.T) {
	e := personEntry()

	tests := []struct {
		in   string
		want Result
	}{
		{"(&(uid=jsmith)(sn=Smith))", ResultTrue},
		{"(&(uid=jsmith)(sn=Jones))", ResultFalse},
		{"(|(uid=other)(sn=Smith))", ResultTrue},
		{"(|(uid=other)(sn=Jones))", ResultFalse},
		{"(!(uid=jsmith))", ResultFalse},
		{"(!(uid=other))", ResultTrue},
		{"(&(objectclass=inetOrgPerson)(!(uid=root)))", ResultTrue},
	}

	for _, tt := range tests {
		f, err := Parse(tt.in)
		require.NoError(t, err, "Parse(%q)", tt.in)
		if got := Evaluate(f, e); got != tt.want {
			t.Errorf("Evaluate(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEvaluateUndefined(t *testing.T) {
	e := personEntry()
	undef := &Filter{Type: FilterExtensibleMatch, Attribute: "cn", Value: []byte("x")}

	if got := Evaluate(undef, e); got != ResultUndefined {
		t.Fatalf("extensible match = %s, want UNDEFINED", got)
	}

	// NOT must not turn Undefined into a match.
	if got := Evaluate(NewNotFilter(undef), e); got != ResultUndefined {
		t.Errorf("NOT(undefined) = %s, want UNDEFINED", got)
	}
	if Matches(NewNotFilter(undef), e) {
		t.Error("NOT(undefined) selected the entry")
	}

	// AND: a False child dominates Undefined; otherwise Undefined wins.
	f := NewAndFilter(undef, NewEqualityFilter("uid", []byte("other")))
	if got := Evaluate(f, e); got != ResultFalse {
		t.Errorf("AND(undefined, false) = %s, want FALSE", got)
	}
	f = NewAndFilter(undef, NewEqualityFilter("uid", []byte("jsmith")))
	if got := Evaluate(f, e); got != ResultUndefined {
		t.Errorf("AND(undefined, true) = %s, want UNDEFINED", got)
	}

	// OR: a True child dominates Undefined.
	f = NewOrFilter(undef, NewEqualityFilter("uid", []byte("jsmith")))
	if got := Evaluate(f, e); got != ResultTrue {
		t.Errorf("OR(undefined, true) = %s, want TRUE", got)
	}
	f = NewOrFilter(undef, NewEqualityFilter("uid", []byte("other")))
	if got := Evaluate(f, e); got != ResultUndefined {
		t.Errorf("OR(undefined, false) = %s, want UNDEFINED", got)
	}
}

func TestEvaluateEmptyComposites(t *testing.T) {
	e := personEntry()

	if got := Evaluate(NewAndFilter(), e); got != ResultTrue {
		t.Errorf("empty AND = %s, want TRUE", got)
	}
	if got := Evaluate(NewOrFilter(), e); got != ResultFalse {
		t.Errorf("empty OR = %s, want FALSE", got)
	}
}

func TestSubstringConsumesLeftToRight(t *testing.T) {
	e := cache.NewEntry("cn=test")
	e.SetStringAttribute("cn", "abab")

	// initial "ab" consumes the first two bytes, so any "ab" must match
	// the remainder, and a final "ab" after that cannot.
	f, err := Parse("(cn=ab*ab)")
	require.NoError(t, err)
	require.Equal(t, ResultTrue, Evaluate(f, e))

	f, err = Parse("(cn=ab*ab*ab)")
	require.NoError(t, err)
	require.Equal(t, ResultFalse, Evaluate(f, e))
}
