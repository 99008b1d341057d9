package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/myselamat/selamat-importer/internal/ingest/schema"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		data string

		want    any
		wantErr bool
	}{
		"Object keeps numbers as literals": {
			data: `{"a": 1, "b": 2.50}`,
			want: map[string]any{"a": json.Number("1"), "b": json.Number("2.50")},
		},
		"Array document":  {data: `[true, null]`, want: []any{true, nil}},
		"Scalar document": {data: `"text"`, want: "text"},
		"Surrounding whitespace is accepted": {
			data: " \n{}\n ",
			want: map[string]any{},
		},

		"Empty document errors":     {data: "", wantErr: true},
		"Truncated document errors": {data: `{"a": `, wantErr: true},
		"Trailing data errors":      {data: `{} {}`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := schema.ParseDocument([]byte(tc.data))
			if tc.wantErr {
				require.Error(t, err, "ParseDocument should have failed")
				return
			}
			require.NoError(t, err, "ParseDocument should not fail")
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		doc string

		want any
	}{
		"Fractional leaves become text": {
			doc:  `{"lat": 12.5, "lng": -8.25, "count": 3}`,
			want: map[string]any{"lat": "12.5", "lng": "-8.25", "count": json.Number("3")},
		},
		"Nested structures keep their shape": {
			doc: `{"a": [1.5, 2, {"b": 0.1, "c": [null, true, "x"]}], "d": {}}`,
			want: map[string]any{
				"a": []any{"1.5", json.Number("2"), map[string]any{"b": "0.1", "c": []any{nil, true, "x"}}},
				"d": map[string]any{},
			},
		},
		"Integral fractional literal stays fractional": {
			doc:  `[1.0, -0.0, 10.50]`,
			want: []any{"1.0", "-0.0", "10.5"},
		},
		"Exponent literals": {
			doc:  `[1e20, 2.5E-7, 1e2]`,
			want: []any{"1e+20", "2.5e-07", "100.0"},
		},
		"Out of range literal is kept verbatim": {
			doc:  `[1e400]`,
			want: []any{"1e400"},
		},
		"Text that looks numeric is untouched": {
			doc:  `{"s": "12.5"}`,
			want: map[string]any{"s": "12.5"},
		},
		"Scalars pass through": {
			doc:  `null`,
			want: nil,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			doc, err := schema.ParseDocument([]byte(tc.doc))
			require.NoError(t, err, "Setup: ParseDocument failed")

			got := schema.Normalize(doc)
			require.Equal(t, tc.want, got, "Normalize returned an unexpected tree")
			require.Equal(t, got, schema.Normalize(got), "Normalize should be idempotent")
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"a": json.Number("1.5"), "b": []any{json.Number("2.5")}}
	_ = schema.Normalize(doc)

	require.Equal(t, json.Number("1.5"), doc["a"])
	require.Equal(t, []any{json.Number("2.5")}, doc["b"])
}

func TestNormalizeFloat64(t *testing.T) {
	t.Parallel()

	require.Equal(t, []any{"3.2", "4.0"}, schema.Normalize([]any{3.2, 4.0}))
}

func TestText(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		v    any
		want string
	}{
		"String":            {v: "12.5", want: "12.5"},
		"Integer":           {v: json.Number("42"), want: "42"},
		"Fractional":        {v: json.Number("3.20"), want: "3.2"},
		"Float64":           {v: -8.25, want: "-8.25"},
		"Boolean":           {v: true, want: "true"},
		"Null":              {v: nil, want: "null"},
		"Object is compact": {v: map[string]any{"m": json.Number("1.5")}, want: `{"m":1.5}`},
		"Array is compact":  {v: []any{"a", json.Number("1")}, want: `["a",1]`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, schema.Text(tc.v))
		})
	}
}
