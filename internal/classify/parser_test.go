package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, false},
		{"bare array", `[1, 2]`, `[1, 2]`, false},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"plain fence", "```\n[true]\n```", `[true]`, false},
		{"prose preamble", "Here is the result:\n{\"a\": 1}", `{"a": 1}`, false},
		{"no json at all", "I could not classify these items.", "", true},
		{"empty", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
