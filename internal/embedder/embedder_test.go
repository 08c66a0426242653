package embedder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKeySeparatesTasks(t *testing.T) {
	assert.NotEqual(t, cacheKey(TaskDocument, "heart"), cacheKey(TaskQuery, "heart"))
	assert.Equal(t, cacheKey(TaskQuery, "heart"), cacheKey(TaskQuery, "heart"))
}

func TestFitDimension(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		v := []float32{1, 2, 3}
		got, err := FitDimension(v, 3)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	})

	t.Run("longer is truncated and renormalized", func(t *testing.T) {
		got, err := FitDimension([]float32{3, 4, 100}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.InDelta(t, 0.6, got[0], 1e-6)
		assert.InDelta(t, 0.8, got[1], 1e-6)
	})

	t.Run("shorter is rejected", func(t *testing.T) {
		_, err := FitDimension([]float32{1}, 2)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := FitDimension(nil, 2)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 1.0, math.Hypot(float64(got[0]), float64(got[1])), 1e-6)

	zero := []float32{0, 0}
	out := NormalizeVector(zero)
	assert.Equal(t, zero, out)
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache(2)
	v := []float32{1, 2}
	c.Set("a", v)
	v[0] = 99

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, float32(1), got[0], "Set must copy")

	got[1] = 42
	again, _ := c.Get("a")
	assert.Equal(t, float32(2), again[1], "Get must copy")

	c.Set("b", v)
	c.Set("c", v)
	assert.Equal(t, 2, c.Size())
	_, ok = c.Get("a")
	assert.False(t, ok, "oldest entry evicted")

	c.Clear()
	assert.Equal(t, 0, c.Size())
}
