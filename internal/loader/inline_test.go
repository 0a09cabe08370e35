package loader

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractInlineMap(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(bundleMap))
	unpadded := base64.RawStdEncoding.EncodeToString([]byte(bundleMap))

	tests := []struct {
		name    string
		content string
	}{
		{"legacy marker", "var a;\n//@ sourceMappingURL=data:application/json;base64," + payload + "\n"},
		{"modern marker", "var a;\n//# sourceMappingURL=data:application/json;base64," + payload},
		{"charset", "var a;\n//# sourceMappingURL=data:application/json;charset=utf-8;base64," + payload + "\n"},
		{"unpadded", "var a;\n//# sourceMappingURL=data:application/json;base64," + unpadded + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ExtractInlineMap(tt.content)
			require.NoError(t, err)
			assert.JSONEq(t, bundleMap, string(data))
		})
	}
}

func TestExtractInlineMap_LastMarkerWins(t *testing.T) {
	first := base64.StdEncoding.EncodeToString([]byte(otherMap))
	last := base64.StdEncoding.EncodeToString([]byte(bundleMap))
	content := "//# sourceMappingURL=data:application/json;base64," + first + "\n" +
		"//# sourceMappingURL=data:application/json;base64," + last + "\n"

	data, err := ExtractInlineMap(content)
	require.NoError(t, err)
	assert.JSONEq(t, bundleMap, string(data))
}

func TestExtractInlineMap_Errors(t *testing.T) {
	_, err := ExtractInlineMap("var a;\n//# sourceMappingURL=bundle.js.map\n")
	assert.ErrorIs(t, err, ErrNoInlineMap)

	_, err = ExtractInlineMap("//@ sourceMappingURL=data:application/json;base64,abcde\n")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoInlineMap)
}
