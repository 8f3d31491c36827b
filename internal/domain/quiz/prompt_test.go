package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt_Render(t *testing.T) {
	p, err := NewPrompt("Rules.\n\nText to analyze:\n{{.Text}}\n")
	require.NoError(t, err)

	out, err := p.Render("The mitochondria is the powerhouse of the cell.")
	require.NoError(t, err)
	assert.Equal(t, "Rules.\n\nText to analyze:\nThe mitochondria is the powerhouse of the cell.\n", out)

	// User text is data, never template syntax.
	out, err = p.Render("{{.Secret}}")
	require.NoError(t, err)
	assert.Contains(t, out, "{{.Secret}}")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), estimateTokens(""))
	assert.Equal(t, int64(1), estimateTokens("abc"))
	assert.Equal(t, int64(1), estimateTokens("abcd"))
	assert.Equal(t, int64(2), estimateTokens("abcde"))
	assert.Equal(t, int64(1), estimateTokens("ñañá"))
}
