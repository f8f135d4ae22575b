package embedding

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestFallback(t *testing.T) {
	t.Run("deterministic and normalized", func(t *testing.T) {
		a := Fallback("Revenue increased by 15% year-over-year")
		b := Fallback("Revenue increased by 15% year-over-year")
		require.Len(t, a, FallbackDimensions)
		assert.Equal(t, a, b)
		assert.InDelta(t, 1.0, norm(a), 1e-6)
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, Fallback("hello world"), Fallback("HELLO World"))
	})

	t.Run("single word hits its hash bucket", func(t *testing.T) {
		vec := Fallback("a")
		assert.InDelta(t, 1.0, vec[97], 1e-9)
	})

	t.Run("empty text is the zero vector", func(t *testing.T) {
		vec := Fallback("   ")
		require.Len(t, vec, FallbackDimensions)
		assert.Zero(t, norm(vec))
	})
}

func TestWordBucket(t *testing.T) {
	assert.Equal(t, 97, wordBucket("a"))
	// "ab" = 97*31 + 98
	assert.Equal(t, (97*31+98)%FallbackDimensions, wordBucket("ab"))
	for _, w := range []string{"overflowingverylongwordthatwraps", "ünïcödé", "revenue"} {
		b := wordBucket(w)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, FallbackDimensions)
	}
}

func TestWithFallback(t *testing.T) {
	t.Run("provider vector", func(t *testing.T) {
		res := WithFallback("x", []float32{1, 2}, nil)
		assert.Equal(t, SourceProvider, res.Source)
		assert.Equal(t, []float32{1, 2}, res.Vector)
		assert.NoError(t, res.Err)
		assert.False(t, res.IsFallback())
	})

	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("boom")
		res := WithFallback("some text", nil, boom)
		assert.True(t, res.IsFallback())
		assert.ErrorIs(t, res.Err, boom)
		assert.Equal(t, Fallback("some text"), res.Vector)
	})

	t.Run("empty vector", func(t *testing.T) {
		res := WithFallback("some text", []float32{}, nil)
		assert.True(t, res.IsFallback())
		assert.Error(t, res.Err)
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))

	a := Fallback("quarterly revenue growth")
	b := Fallback("annual profit decline")
	s := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, s, -1.0)
	assert.LessOrEqual(t, s, 1.0)
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
}
