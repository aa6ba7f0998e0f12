// Package salience assigns long-term memory worth to conversational text.
// Scores are bounded to [0,1]; the engine relies on that and on keyword
// monotonicity (mentioning a promoted keyword never lowers a score), not on
// any particular scoring formula, so deployments can swap the Scorer.
package salience

import (
	"sort"
	"strings"
)

// Meta carries scoring context alongside the text.
type Meta struct {
	Scope   string
	Kind    string
	Speaker string
}

// Scorer assigns a salience score in [0,1].
type Scorer interface {
	Score(text string, meta Meta) float64
}

// KeywordScorer scores by promoted keyword sets: a match raises the score to
// at least the set's weight. Emphasis cues add a small bonus on top.
type KeywordScorer struct {
	base     float64
	sets     []keywordSet
	emphasis float64
}

type keywordSet struct {
	weight float64
	words  []string
}

// New builds a KeywordScorer from a weight→keywords map.
func New(base float64, sets map[float64][]string, emphasisBonus float64) *KeywordScorer {
	k := &KeywordScorer{base: Clamp01(base), emphasis: emphasisBonus}
	for weight, words := range sets {
		lowered := make([]string, len(words))
		for i, w := range words {
			lowered[i] = strings.ToLower(w)
		}
		sort.Strings(lowered)
		k.sets = append(k.sets, keywordSet{weight: Clamp01(weight), words: lowered})
	}
	sort.Slice(k.sets, func(i, j int) bool { return k.sets[i].weight > k.sets[j].weight })
	return k
}

// Default returns the stock scorer: explicit memory cues promote to 0.8,
// planning vocabulary to 0.7, everything else sits at the 0.5 baseline.
func Default() *KeywordScorer {
	return New(0.5, map[float64][]string{
		0.8: {"important", "remember", "key", "critical", "essential"},
		0.7: {"project", "goal", "plan", "deadline"},
	}, 0.05)
}

// Score implements Scorer.
func (k *KeywordScorer) Score(text string, _ Meta) float64 {
	lower := strings.ToLower(text)
	score := k.base

	for _, set := range k.sets {
		for _, w := range set.words {
			if strings.Contains(lower, w) {
				if set.weight > score {
					score = set.weight
				}
				break
			}
		}
	}

	if k.emphasis > 0 && hasEmphasis(text) {
		score += k.emphasis
	}
	if len(strings.TrimSpace(text)) < 16 {
		score -= 0.05
	}
	return Clamp01(score)
}

// Matched returns the promoted keywords present in the text, highest-weight
// sets first. Used to tag extracted records.
func (k *KeywordScorer) Matched(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, set := range k.sets {
		for _, w := range set.words {
			if strings.Contains(lower, w) {
				hits = append(hits, w)
			}
		}
	}
	return hits
}

func hasEmphasis(text string) bool {
	if strings.Contains(text, "!") {
		return true
	}
	for _, tok := range strings.Fields(text) {
		trimmed := strings.Trim(tok, ".,;:!?\"'")
		if len(trimmed) >= 3 && trimmed == strings.ToUpper(trimmed) && trimmed != strings.ToLower(trimmed) {
			return true
		}
	}
	return false
}

var (
	positiveWords = []string{"love", "wonderful", "amazing", "excited", "happy"}
	negativeWords = []string{"concerned", "worried", "difficult", "challenging"}
)

// Valence estimates emotional tone in [-1,1]: warm language reads positive,
// troubled language mildly negative, everything else neutral.
func Valence(text string) float64 {
	lower := strings.ToLower(text)
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return 0.8
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return -0.3
		}
	}
	return 0
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
