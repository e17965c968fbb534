package mindmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidTree is returned when tool arguments do not describe a valid
// tree.
var ErrInvalidTree = errors.New("invalid mindmap tree")

// Schema returns the parameter schema of the create_mindmap tool:
// {"mindmap": node} where node is {"topic": string, "children": [node]}.
func Schema() *jsonschema.Schema {
	// Resolve requires a tree, so every use needs its own value.
	noExtra := func() *jsonschema.Schema {
		return &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}
	return &jsonschema.Schema{
		Type: "object",
		Defs: map[string]*jsonschema.Schema{
			"node": {
				Type:        "object",
				Description: "A mindmap topic and its subtopics.",
				Properties: map[string]*jsonschema.Schema{
					"topic": {
						Type:        "string",
						Description: "Short label of the topic.",
						MinLength:   jsonschema.Ptr(1),
					},
					"children": {
						Types:       []string{"array", "null"},
						Description: "Subtopics, in order.",
						Items:       &jsonschema.Schema{Ref: "#/$defs/node"},
					},
				},
				Required:             []string{"topic"},
				AdditionalProperties: noExtra(),
			},
		},
		Properties: map[string]*jsonschema.Schema{
			"mindmap": {Ref: "#/$defs/node"},
		},
		Required:             []string{"mindmap"},
		AdditionalProperties: noExtra(),
	}
}

var resolvedSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return Schema().Resolve(nil)
})

type toolArgs struct {
	MindMap *Node `json:"mindmap"`
}

// Parse validates create_mindmap tool arguments and decodes the tree.
func Parse(arguments string) (*Node, error) {
	resolved, err := resolvedSchema()
	if err != nil {
		return nil, fmt.Errorf("resolving mindmap schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal([]byte(arguments), &instance); err != nil {
		return nil, fmt.Errorf("%w: arguments are not JSON: %v", ErrInvalidTree, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}

	var args toolArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}
	normalize(args.MindMap)

	var blank bool
	args.MindMap.Walk(func(_, n *Node, _ int) {
		if n.Topic == "" {
			blank = true
		}
	})
	if blank {
		return nil, fmt.Errorf("%w: blank topic", ErrInvalidTree)
	}
	return args.MindMap, nil
}

// Decode reads a stored tree.
func Decode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}
	if n.Topic == "" {
		return nil, fmt.Errorf("%w: stored tree has no root topic", ErrInvalidTree)
	}
	normalize(&n)
	return &n, nil
}
