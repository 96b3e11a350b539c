package search

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"the": true, "that": true, "this": true, "to": true, "was": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"will": true, "with": true, "your": true,
}

// tokenize lowercases text and splits it on non-alphanumeric runs, dropping
// stopwords and single characters.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// keywordOverlap scores a document against the query tokens: the fraction of
// distinct query tokens present in the document, with the matched terms
// reported for display.
func keywordOverlap(queryTokens []string, docText string) (float64, []string) {
	if len(queryTokens) == 0 {
		return 0, nil
	}

	docSet := make(map[string]bool)
	for _, tok := range tokenize(docText) {
		docSet[tok] = true
	}

	querySet := make(map[string]bool, len(queryTokens))
	for _, tok := range queryTokens {
		querySet[tok] = true
	}

	var matched []string
	for tok := range querySet {
		if docSet[tok] {
			matched = append(matched, tok)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}
	sort.Strings(matched)
	return float64(len(matched)) / float64(len(querySet)), matched
}
