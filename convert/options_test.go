package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	t.Run("empty string", func(t *testing.T) {
		opts, err := ParseOptions("   ")
		require.NoError(t, err)
		assert.Empty(t, opts)
	})

	t.Run("key value pairs and flags", func(t *testing.T) {
		opts, err := ParseOptions(`quality=85 grayscale resize=800x600`)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"quality":   "85",
			"grayscale": "true",
			"resize":    "800x600",
		}, opts)
	})

	t.Run("quoted values keep spaces", func(t *testing.T) {
		opts, err := ParseOptions(`label="summer trip" quality=70`)
		require.NoError(t, err)
		assert.Equal(t, "summer trip", opts["label"])
	})

	t.Run("unbalanced quote", func(t *testing.T) {
		_, err := ParseOptions(`label="oops`)
		assert.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := ParseOptions(`=value`)
		assert.Error(t, err)
	})
}

func TestMergeOptions(t *testing.T) {
	base := map[string]string{"quality": "90", "grayscale": "true"}
	merged := MergeOptions(base, map[string]string{"quality": "60"})

	assert.Equal(t, "60", merged["quality"])
	assert.Equal(t, "true", merged["grayscale"])
	assert.Equal(t, "90", base["quality"], "base must not be mutated")
}
