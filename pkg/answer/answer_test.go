package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind Kind
		wantVal  any
		wantText string
	}{
		{
			name:     "number",
			raw:      "42",
			wantKind: KindStructured,
			wantVal:  float64(42),
		},
		{
			name:     "object",
			raw:      `{"x":1}`,
			wantKind: KindStructured,
			wantVal:  map[string]any{"x": float64(1)},
		},
		{
			name:     "array with whitespace",
			raw:      "  [1, \"a\", true]\n",
			wantKind: KindStructured,
			wantVal:  []any{float64(1), "a", true},
		},
		{
			name:     "json null",
			raw:      "null",
			wantKind: KindStructured,
			wantVal:  nil,
		},
		{
			name:     "prose",
			raw:      "hello world",
			wantKind: KindText,
			wantText: "hello world",
		},
		{
			name:     "empty string",
			raw:      "",
			wantKind: KindText,
			wantText: "",
		},
		{
			name:     "trailing data",
			raw:      `{"x":1} and more`,
			wantKind: KindText,
			wantText: `{"x":1} and more`,
		},
		{
			name:     "single quoted object is not json",
			raw:      "{'x': 1}",
			wantKind: KindText,
			wantText: "{'x': 1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)

			assert.Equal(t, tt.wantKind, got.Kind)
			if tt.wantKind == KindStructured {
				assert.Equal(t, tt.wantVal, got.Value)
			} else {
				assert.Equal(t, tt.wantText, got.Text)
			}
		})
	}
}

func TestDecodeField(t *testing.T) {
	assert.True(t, DecodeField(nil).IsZero())

	s := "plain"
	got := DecodeField(&s)
	assert.Equal(t, KindText, got.Kind)
	assert.Equal(t, "plain", got.Text)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "{\n  \"x\": 1\n}", Decode(`{"x":1}`).Render())
	assert.Equal(t, "42", Decode("42").Render())
	assert.Equal(t, "hello world", Decode("hello world").Render())
	assert.Equal(t, "", Answer{}.Render())
}

func TestClone(t *testing.T) {
	orig := Decode(`{"items":[{"a":1}]}`)
	cp := orig.Clone()

	cp.Value.(map[string]any)["items"].([]any)[0].(map[string]any)["a"] = float64(2)

	inner := orig.Value.(map[string]any)["items"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), inner["a"])
}
