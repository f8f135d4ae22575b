package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

// Keyword scoring weights.
const (
	wholeWordWeight  = 3.0
	substringWeight  = 1.0
	phraseBonus      = 15.0
	distinctWeight   = 2.0
	densityWeight    = 0.1
	densityPerNWords = 100.0
)

type keywordQuery struct {
	phrase   string
	keywords []string
}

func newKeywordQuery(query string) keywordQuery {
	return keywordQuery{
		phrase:   strings.Join(strings.Fields(strings.ToLower(query)), " "),
		keywords: tokenizer.Keywords(query),
	}
}

// score rates content against the query. Zero means no evidence.
func (q keywordQuery) score(content string) float64 {
	text := strings.ToLower(content)

	var (
		score    float64
		hits     int
		distinct int
	)
	for _, kw := range q.keywords {
		whole, partial := countMatches(text, kw)
		if whole+partial == 0 {
			continue
		}
		distinct++
		hits += whole + partial
		score += wholeWordWeight*float64(whole) + substringWeight*float64(partial)
	}

	if q.phrase != "" && strings.Contains(strings.Join(strings.Fields(text), " "), q.phrase) {
		score += phraseBonus
	}
	if distinct > 1 {
		score += distinctWeight * float64(distinct)
	}
	if hits > 0 {
		words := max(len(strings.Fields(text)), 1)
		score += densityWeight * float64(hits) / float64(words) * densityPerNWords
	}
	return score
}

// countMatches counts non-overlapping occurrences of kw in text, split into
// whole-word matches and matches inside a longer word.
func countMatches(text, kw string) (whole, partial int) {
	if kw == "" {
		return 0, 0
	}
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(kw)
		if isBoundary(text, start, end) {
			whole++
		} else {
			partial++
		}
		i = end
	}
	return whole, partial
}

func isBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
