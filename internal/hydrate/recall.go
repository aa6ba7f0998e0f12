package hydrate

import "strings"

// recallCues are the phrases that signal a turn wants earlier material
// surfaced from the archive.
var recallCues = []string{
	"remember when",
	"last time",
	"we discussed",
	"we talked about",
	"earlier you said",
	"back when",
	"previously",
	"recall",
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "i": true, "you": true, "we": true,
	"they": true, "he": true, "she": true, "it": true, "me": true, "him": true,
	"her": true, "us": true, "them": true, "my": true, "your": true, "our": true,
	"their": true, "this": true, "that": true, "these": true, "those": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "from": true, "by": true, "as": true, "not": true, "no": true,
	"so": true, "what": true, "when": true, "where": true, "why": true,
	"how": true, "will": true, "would": true, "can": true, "could": true,
	"should": true, "just": true, "about": true, "said": true, "talked": true,
	"discussed": true, "remember": true, "recall": true, "time": true,
	"last": true, "back": true, "earlier": true, "previously": true,
}

// wantsRecall reports whether the turn text contains a recall cue.
func wantsRecall(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, cue := range recallCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// queryTerms extracts the content words worth searching for: lowercased,
// punctuation-trimmed, stopwords and cue vocabulary removed, capped at six.
func queryTerms(text string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		w := strings.Trim(tok, ".,;:!?\"'()[]{}")
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == 6 {
			break
		}
	}
	return terms
}

func joinTerms(terms []string) string {
	return strings.Join(terms, " ")
}
