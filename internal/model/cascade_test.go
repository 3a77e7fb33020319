package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCascadeMode(t *testing.T) {
	tests := []struct {
		input   string
		want    CascadeMode
		wantErr bool
	}{
		{input: "", want: CascadeSingle},
		{input: "single", want: CascadeSingle},
		{input: "Future", want: CascadeFuture},
		{input: " all ", want: CascadeAll},
		{input: "everything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCascadeMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCascadeMode_JSON(t *testing.T) {
	var body struct {
		Mode CascadeMode `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"future"}`), &body))
	assert.Equal(t, CascadeFuture, body.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"sometimes"}`), &body))

	_, err := CascadeMode(7).MarshalText()
	assert.Error(t, err)
}
