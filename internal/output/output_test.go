package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestNestedGolden(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{
			name: "nested_return",
			data: map[string]any{
				"local": map[string]any{
					"pid":     4242,
					"stdout":  "line one\nline two\n",
					"ok":      true,
					"missing": nil,
					"items":   []any{1, "x", map[string]any{"c": 2.5}, []string{"a", "b"}},
				},
			},
		},
		{
			name: "nested_scalar",
			data: map[string]any{"web01": "pong"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, Nested, tt.data, Options{}))
			golden(t).Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, JSON, map[string]any{"local": []string{"a"}}, Options{}))
	assert.Equal(t, "{\n    \"local\": [\n        \"a\"\n    ]\n}\n", buf.String())
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, YAML, map[string]any{"local": map[string]any{"retcode": 0}}, Options{}))
	assert.Equal(t, "local:\n  retcode: 0\n", buf.String())
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"web01": map[string]any{"a": 1}, "alpha": "x"}
	require.NoError(t, Render(&buf, Text, data, Options{}))
	assert.Equal(t, "alpha: x\nweb01: {\"a\":1}\n", buf.String())
}

func TestRenderQuietAndRaw(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Quiet, map[string]any{"local": true}, Options{}))
	assert.Empty(t, buf.String())

	require.NoError(t, Render(&buf, Raw, "pong", Options{}))
	assert.Equal(t, "pong\n", buf.String())
}

func TestUnknownFormatFallsBackToNested(t *testing.T) {
	var want, got bytes.Buffer
	data := map[string]any{"local": "pong"}
	require.NoError(t, Render(&want, Nested, data, Options{}))
	require.NoError(t, Render(&got, "highstate", data, Options{}))
	assert.Equal(t, want.String(), got.String())
	assert.False(t, Known("highstate"))
	assert.True(t, Known(YAML))
}

func TestNestedColorKeepsText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Nested, map[string]any{"local": "pong"}, Options{Color: true}))
	assert.True(t, strings.Contains(buf.String(), "pong"))
	assert.True(t, strings.Contains(buf.String(), "local"))
}

func TestNormalizeStruct(t *testing.T) {
	type ret struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	got := normalize(&ret{Name: "disk", Count: 2})
	assert.Equal(t, map[string]any{"name": "disk", "count": float64(2)}, got)
	assert.Nil(t, normalize((*ret)(nil)))
}
