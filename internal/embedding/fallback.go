package embedding

import (
	"errors"
	"math"
	"strings"
	"unicode/utf16"
)

// FallbackDimensions is the width of hash-based fallback vectors.
const FallbackDimensions = 384

type Source string

const (
	SourceProvider Source = "provider"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

var errEmptyVector = errors.New("provider returned an empty vector")

// Result is an embedding together with the path that produced it. Err is
// set when the provider failed and the vector is a fallback.
type Result struct {
	Vector []float32
	Source Source
	Err    error
}

func (r Result) IsFallback() bool { return r.Source == SourceFallback }

// WithFallback turns the outcome of a live embedding call into a Result,
// substituting the hash vector of text when the call failed.
func WithFallback(text string, vec []float32, err error) Result {
	if err == nil && len(vec) > 0 {
		return Result{Vector: vec, Source: SourceProvider}
	}
	if err == nil {
		err = errEmptyVector
	}
	return Result{Vector: Fallback(text), Source: SourceFallback, Err: err}
}

// Fallback returns a deterministic, L2-normalized bag-of-words vector. Each
// whitespace-separated lowercase word adds 1/(position+1) to the bucket its
// hash selects.
func Fallback(text string) []float32 {
	acc := make([]float64, FallbackDimensions)
	for i, word := range strings.Fields(strings.ToLower(text)) {
		acc[wordBucket(word)] += 1 / float64(i+1)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, FallbackDimensions)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// wordBucket hashes UTF-16 code units with the 31-multiplier string hash in
// 32-bit signed arithmetic.
func wordBucket(word string) int {
	var h int32
	for _, u := range utf16.Encode([]rune(word)) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % FallbackDimensions)
}
