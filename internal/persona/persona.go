// Package persona normalises free-text persona descriptions.
package persona

import "strings"

// Default is the persona every new identity starts from.
const Default = "You are the digital twin of a real person who is ruthlessly asexual and devoid of gender or racial attributes."

// Canonicalize splits raw into sentences, normalises whitespace, removes
// exact duplicates keeping the first occurrence, and joins the result as
// "A. B." Empty input yields ".". Canonicalize(Canonicalize(x)) equals
// Canonicalize(x).
func Canonicalize(raw string) string {
	return strings.Join(Sentences(raw), ". ") + "."
}

// Sentences returns the distinct, whitespace-clean sentence fragments of
// raw in order of first appearance.
func Sentences(raw string) []string {
	fragments := strings.FieldsFunc(raw, isSentenceBreak)

	seen := make(map[string]struct{}, len(fragments))
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		s := strings.Join(strings.Fields(f), " ")
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '\r':
		return true
	}
	return false
}
