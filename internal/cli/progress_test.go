package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 3, "Generating")

	for range 3 {
		require.NoError(t, bar.Add(1))
	}

	assert.True(t, bar.IsFinished())
	assert.Contains(t, buf.String(), "Generating")
	assert.Contains(t, buf.String(), "3/3")
}
