package model

import "strings"

// KeySeparator joins name components inside dedup keys. Double pipe is not
// expected to occur in a concept name.
const KeySeparator = "||"

// MergeKey builds the order-insensitive identity for a pair of concept
// names: both names lowercased, sorted lexicographically, joined by the
// separator. MergeKey(a, b) == MergeKey(b, a) for all a, b.
func MergeKey(a, b string) string {
	a = normalizeName(a)
	b = normalizeName(b)
	if b < a {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// RelationshipKey builds the identity for a directed, typed edge. Unlike
// MergeKey it preserves direction and relation type, so
// RelationshipKey(s, t, r) != RelationshipKey(t, s, r) whenever s != t.
func RelationshipKey(source, target, relationType string) string {
	return normalizeName(source) + KeySeparator + normalizeName(target) + KeySeparator + strings.ToUpper(strings.TrimSpace(relationType))
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
