package pricing

import (
	"strings"

	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

// areaClassifier matches whole words of the normalised suburb against the
// configured lists. The affluent list is consulted first, so a suburb on both
// lists is affluent, and "sandtonview" never matches "sandton".
type areaClassifier struct {
	affluent [][]string
	stressed [][]string
}

func newAreaClassifier(affluent, stressed []string) areaClassifier {
	return areaClassifier{affluent: tokenizeAll(affluent), stressed: tokenizeAll(stressed)}
}

func (c areaClassifier) classify(suburb string) types.AreaType {
	words := strings.Fields(types.NormalizeArea(suburb))
	if len(words) == 0 {
		return types.AreaStandard
	}
	if matchesAny(words, c.affluent) {
		return types.AreaAffluent
	}
	if matchesAny(words, c.stressed) {
		return types.AreaStressed
	}
	return types.AreaStandard
}

func tokenizeAll(areas []string) [][]string {
	out := make([][]string, 0, len(areas))
	for _, area := range areas {
		if words := strings.Fields(types.NormalizeArea(area)); len(words) > 0 {
			out = append(out, words)
		}
	}
	return out
}

func matchesAny(words []string, phrases [][]string) bool {
	for _, phrase := range phrases {
		if containsPhrase(words, phrase) {
			return true
		}
	}
	return false
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j := range phrase {
			if words[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
