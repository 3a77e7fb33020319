package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter_ReadLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "successful read", input: "test input\n", expected: "test input"},
		{name: "extra whitespace", input: "  test input  \n", expected: "test input"},
		{name: "empty line", input: "\n", expected: ""},
		{name: "last line without newline", input: "tail", expected: "tail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrompter(strings.NewReader(tt.input), io.Discard)
			line, err := p.ReadLine(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

func TestPrompter_ReadLineCancelled(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	p := NewPrompter(reader, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrInputCancelled)
}

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{input: "y\n", expected: true},
		{input: "YES\n", expected: true},
		{input: "n\n", expected: false},
		{input: "\n", expected: false},
		{input: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tt.input), &out)

			ok, err := p.Confirm(context.Background(), "Delete account?")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.Contains(t, out.String(), "Delete account? [y/N]")
		})
	}
}
