package mindmap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    *Node
		wantErr bool
	}{
		{
			name: "nested",
			args: `{"mindmap":{"topic":"Q1","children":[{"topic":"Revenue"},{"topic":"Costs","children":[]}]}}`,
			want: tree("Q1", tree("Revenue"), tree("Costs")),
		},
		{
			name: "null children",
			args: `{"mindmap":{"topic":" Q1 ","children":null}}`,
			want: tree("Q1"),
		},
		{name: "not json", args: `{"mindmap":`, wantErr: true},
		{name: "missing mindmap", args: `{"topic":"Q1"}`, wantErr: true},
		{name: "empty topic", args: `{"mindmap":{"topic":""}}`, wantErr: true},
		{name: "blank nested topic", args: `{"mindmap":{"topic":"Q1","children":[{"topic":"   "}]}}`, wantErr: true},
		{name: "topic not a string", args: `{"mindmap":{"topic":3}}`, wantErr: true},
		{name: "children not an array", args: `{"mindmap":{"topic":"Q1","children":"Revenue"}}`, wantErr: true},
		{name: "extra node property", args: `{"mindmap":{"topic":"Q1","weight":2}}`, wantErr: true},
		{name: "extra root property", args: `{"mindmap":{"topic":"Q1"},"note":"x"}`, wantErr: true},
		{name: "invalid grandchild", args: `{"mindmap":{"topic":"Q1","children":[{"topic":"A","children":[{"name":"B"}]}]}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTree)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_IsToolParameters(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "object", decoded["type"])
	assert.Equal(t, []any{"mindmap"}, decoded["required"])
	assert.Contains(t, decoded, "$defs")
}

func TestSchema_Resolves(t *testing.T) {
	resolved, err := Schema().Resolve(nil)
	require.NoError(t, err)

	var instance any
	require.NoError(t, json.Unmarshal([]byte(`{"mindmap":{"topic":"Q1","children":[{"topic":"Revenue","children":[{"topic":"Growth"}]}]}}`), &instance))
	assert.NoError(t, resolved.Validate(instance))

	require.NoError(t, json.Unmarshal([]byte(`{"mindmap":{"topic":"Q1"},"note":"x"}`), &instance))
	assert.Error(t, resolved.Validate(instance))
}

func TestDecode(t *testing.T) {
	n, err := Decode([]byte(`{"topic":"Q1","children":[{"topic":"Revenue"}]}`))
	require.NoError(t, err)
	assert.Equal(t, tree("Q1", tree("Revenue")), n)

	_, err = Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidTree)

	_, err = Decode([]byte(`nope`))
	assert.ErrorIs(t, err, ErrInvalidTree)
}
