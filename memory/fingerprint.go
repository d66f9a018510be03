package memory

import (
	"sort"
	"strings"
	"unicode"

	"github.com/BaSui01/memflow/types"
)

// stopWords are excluded from every fingerprint.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "is": {}, "are": {}, "be": {}, "was": {}, "were": {},
}

// Fingerprinter derives normalized token sets from task descriptions.
// The same input always yields the same fingerprint.
type Fingerprinter struct {
	significant map[string]struct{}
}

// NewFingerprinter creates a fingerprinter. String values stored under
// the given context keys are folded into the fingerprint alongside the
// description.
func NewFingerprinter(significantKeys []string) *Fingerprinter {
	significant := make(map[string]struct{}, len(significantKeys))
	for _, k := range significantKeys {
		significant[k] = struct{}{}
	}
	return &Fingerprinter{significant: significant}
}

// Fingerprint normalizes description and significant context values into
// a sorted, de-duplicated token set. Empty input yields an empty set,
// which matches nothing.
func (f *Fingerprinter) Fingerprint(description string, context map[string]any) types.Fingerprint {
	tokens := make(map[string]struct{})
	collectTokens(tokens, description)

	for key := range f.significant {
		if v, ok := context[key]; ok {
			if s, ok := v.(string); ok {
				collectTokens(tokens, s)
			}
		}
	}

	out := make(types.Fingerprint, 0, len(tokens))
	for t := range tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// collectTokens lower-cases text, replaces punctuation with spaces,
// splits on whitespace, and drops stop words.
func collectTokens(into map[string]struct{}, text string) {
	normalized := strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	for _, word := range strings.Fields(normalized) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		into[word] = struct{}{}
	}
}

// Jaccard returns |intersection| / |union| of two fingerprints. Both
// inputs must be sorted and de-duplicated, which Fingerprint guarantees.
// An empty fingerprint on either side scores zero.
func Jaccard(a, b types.Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			intersection++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
