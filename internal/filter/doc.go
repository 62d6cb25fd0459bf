// Package filter provides LDAP search filter data structures, parsing,
// and evaluation.
//
// Evaluation is three-valued per RFC 4511: a filter applied to an entry
// yields True, False, or Undefined. Undefined arises from filter types
// the server cannot evaluate (extensible match, unknown operators) and
// propagates through NOT, so (!(undefined)) stays Undefined rather than
// becoming a match. Only True selects an entry.
package filter
