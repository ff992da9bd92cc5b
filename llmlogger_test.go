package personaquiz

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transcripts")
	ll, err := NewLLMLogger(dir, "abc123", testProfile())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc123.log"), ll.Path())

	ll.LogLLMRequest(ShapeQuestion, "  system prompt ", "user prompt")
	ll.LogLLMResponse(ShapeQuestion, validQuestion)
	ll.LogLLMError(ShapeAnalysis, errors.New("boom"))
	ll.LogItemSettled(2, 3, "fallback")
	require.NoError(t, ll.Close())
	require.NoError(t, ll.Close(), "second close is a no-op")
	ll.Logf("after close\n")

	data, err := os.ReadFile(ll.Path())
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "Occupation: Engineer")
	assert.Contains(t, text, "Interests: Hiking")
	assert.Contains(t, text, "=== LLM REQUEST (question) ===")
	assert.Contains(t, text, "System:\nsystem prompt\n")
	assert.Contains(t, text, `"optionA"`)
	assert.Contains(t, text, "=== LLM ERROR (analysis) === boom")
	assert.Contains(t, text, "Item 2 (template 3): settled from fallback")
	assert.Contains(t, text, "Session Transcript Closed")
	assert.NotContains(t, text, "after close")
}
