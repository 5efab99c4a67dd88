package query

import (
	"regexp"
	"strings"

	"oc-search-go/internal/model"
)

var termPattern = regexp.MustCompile(`[^"\s]\S*|".+?"`)

// French connectives rewritten to engine operators. Each space separated word
// is compared on its own, so the words are rewritten inside quoted phrases too.
var frenchOperators = map[string]string{
	"ET":  "AND",
	"OU":  "OR",
	"PAS": "NOT",
}

// Terms tokenizes free text, keeping double-quoted phrases whole. Blank input
// becomes MatchAll.
func Terms(text, lang string) string {
	tokens := termPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return MatchAll
	}
	terms := strings.Join(tokens, " ")
	if lang == model.LangFR {
		words := strings.Split(terms, " ")
		for i, w := range words {
			if op, ok := frenchOperators[w]; ok {
				words[i] = op
			}
		}
		terms = strings.Join(words, " ")
	}
	return terms
}
