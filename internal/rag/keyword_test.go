package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountMatches(t *testing.T) {
	tests := []struct {
		text, kw       string
		whole, partial int
	}{
		{"revenue and revenues", "revenue", 1, 1},
		{"prerevenue", "revenue", 0, 1},
		{"revenue, revenue.", "revenue", 2, 0},
		{"café crème", "café", 1, 0},
		{"nothing", "revenue", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			whole, partial := countMatches(tt.text, tt.kw)
			assert.Equal(t, tt.whole, whole)
			assert.Equal(t, tt.partial, partial)
		})
	}
}

func TestKeywordScore(t *testing.T) {
	t.Run("whole word plus density", func(t *testing.T) {
		// 3 for the hit, 0.1 * (1 hit / 4 words * 100).
		assert.InDelta(t, 5.5, newKeywordQuery("revenue").score("our revenue was flat"), 1e-9)
	})

	t.Run("distinct keyword bonus", func(t *testing.T) {
		// 2 * 3 for the hits, 2 * 2 distinct, 0.1 * (2/4 * 100), no phrase.
		assert.InDelta(t, 15.0, newKeywordQuery("growth revenue").score("revenue showed strong growth"), 1e-9)
	})

	t.Run("phrase bonus", func(t *testing.T) {
		with := newKeywordQuery("the revenue").score("the revenue grew")
		without := newKeywordQuery("the revenue").score("revenue of firm")
		assert.InDelta(t, 15.0, with-without, 1e-9)
	})

	t.Run("stop words alone score nothing", func(t *testing.T) {
		assert.Zero(t, newKeywordQuery("what is it").score("it is what it is, in the end"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Greater(t, newKeywordQuery("REVENUE").score("Revenue rose"), 0.0)
	})
}
