package tokenizer

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into",
		"about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "don", "should", "now", "what", "which", "who", "whom",
		"when", "where", "why", "how", "does", "did", "do", "has", "have", "had", "there", "their", "they",
		"them", "you", "your", "our", "not", "any", "all", "some", "also", "would", "could", "tell", "please",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// CountTokens provides a rough token count estimate.
func CountTokens(text string) int {
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}

// Words returns the lowercase word tokens of text, punctuation stripped.
func Words(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// IsStopword reports whether w (lowercase) is a common English function word.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Keywords returns the distinct content words of text: lowercase, longer
// than two characters and not stop words, in first-seen order.
func Keywords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range Words(text) {
		if len([]rune(w)) <= 2 || IsStopword(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
