package tags

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeStrings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json array", `["a", "b", "c"]`, []string{"a", "b", "c"}},
		{"single quoted", `['a', 'b']`, []string{"a", "b"}},
		{"comma separated", "a, b, c", []string{"a", "b", "c"}},
		{"bare word", "a", []string{"a"}},
		{"bare korean word", "기획", []string{"기획"}},
		{"unquoted bracket list", "[기획, 디자인]", []string{"기획", "디자인"}},
		{"single bracketed word", "[기획]", []string{"기획"}},
		{"quoted word", `"기획"`, []string{"기획"}},
		{"python quoted word", "'기획'", []string{"기획"}},
		{"numbers and nulls", `[1, null, "x"]`, []string{"1", "x"}},
		{"empty pieces dropped", "a,, ,b,", []string{"a", "b"}},
		{"surrounding whitespace", "  [\"API\"]  ", []string{"API"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in, nil)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Normalize(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	def := []string{DefaultCategory}
	for _, in := range []any{nil, "", "   ", "nan", "None", "NULL", "[]", "[ ]", "[,]", `""`, 42, map[string]string{}} {
		assert.Equal(t, def, Normalize(in, def), "input %#v", in)
	}

	assert.Equal(t, []string{}, Keywords(nil))
	assert.Equal(t, []string{}, Keywords("nan"))
	assert.Equal(t, []string{DefaultCategory}, Categories("", ""))
	assert.Equal(t, []string{"Unspecified"}, Categories(nil, "Unspecified"))
}

func TestNormalizeFallbackIsCopied(t *testing.T) {
	def := []string{DefaultCategory}
	got := Normalize("", def)
	got[0] = "changed"
	assert.Equal(t, DefaultCategory, def[0])
}

func TestNormalizeNativeListsPassThrough(t *testing.T) {
	for _, in := range [][]string{{}, {"a"}, {"b", "a", "b"}, {"", " spaced "}} {
		assert.Equal(t, in, Normalize(in, []string{"x"}))
	}
	assert.Equal(t, []string{"a", "2"}, Normalize([]any{"a", nil, 2}, nil))
	assert.Equal(t, []string{"x"}, Normalize([]any{nil}, []string{"x"}))
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, in := range [][]string{
		{"caching", "API"},
		{"개발"},
		{"it's", `say "hi"`, "a, b"},
		{"<tag>&", "디자인시스템"},
	} {
		encoded := Encode(in)
		if diff := cmp.Diff(in, Normalize(encoded, nil)); diff != "" {
			t.Fatalf("round trip of %q via %s (-want +got):\n%s", in, encoded, diff)
		}
	}
	assert.Equal(t, "[]", Encode(nil))
}
