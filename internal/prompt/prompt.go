// Package prompt holds the answer prompts and a small {{variable}} renderer.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

const System = `You are a helpful assistant that answers questions about the user's documents.
Answer using only the provided context. If the context does not contain the answer, say so instead of guessing.`

// KeywordMode is appended to System when retrieval fell back to keyword
// matching.
const KeywordMode = `The context was selected by keyword matching rather than semantic search, so it may be incomplete or only loosely related to the question.
Point out any uncertainty in your answer.`

const Answer = "Context: {{context}}\n\nQuestion: {{question}}\n\nAnswer:"

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces {{variable}} placeholders with values from vars. Values are
// inserted verbatim and never re-expanded.
func Render(template string, vars map[string]string) (string, error) {
	var missing []string
	for _, name := range Variables(template) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		return vars[match[2:len(match)-2]]
	}), nil
}

// Variables lists the distinct placeholder names in template order.
func Variables(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// MustRender is Render for templates whose variables are known at compile
// time.
func MustRender(template string, vars map[string]string) string {
	out, err := Render(template, vars)
	if err != nil {
		panic(err)
	}
	return out
}
