package extract

import "strings"

// Small word lists for the local sentiment estimate attached to pattern
// mentions. The model pass supplies its own per-entity sentiment; this only
// has to be deterministic and roughly directional.
var (
	positiveWords = map[string]bool{
		"amazing": true, "awesome": true, "breakthrough": true, "excellent": true,
		"exciting": true, "fast": true, "great": true, "impressive": true,
		"improved": true, "love": true, "powerful": true, "recommend": true,
		"reliable": true, "useful": true, "best": true, "favorite": true,
	}
	negativeWords = map[string]bool{
		"bad": true, "broken": true, "bug": true, "buggy": true, "concern": true,
		"disappointing": true, "expensive": true, "fail": true, "failed": true,
		"hate": true, "issue": true, "problem": true, "slow": true,
		"terrible": true, "unreliable": true, "worst": true, "worse": true,
	}
)

// SentimentScore returns a value in [-1, 1] from the balance of positive and
// negative words in already lowercased text. Neutral text scores zero.
func SentimentScore(lower string) float64 {
	var pos, neg int
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if positiveWords[word] {
			pos++
		}
		if negativeWords[word] {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}
