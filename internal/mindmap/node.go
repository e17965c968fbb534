// Package mindmap builds and incrementally merges the per-group mind-map.
//
// A group starts without a tree (NoMap). The first ingested document asks
// the model for a new tree, which is stored (Created). Every later document
// asks for a merge of the stored tree and the new text; the merged tree
// replaces the stored one wholesale (Merged). Topics the model drops during
// a merge are grafted back, so a tree never loses content contributed by an
// earlier document.
package mindmap

import (
	"encoding/json"
	"strings"
)

// Node is one topic of the tree. Children order is synthesis order.
type Node struct {
	Topic    string  `json:"topic"`
	Children []*Node `json:"children,omitempty"`
}

// Walk visits every node in pre-order. parent is nil for the root.
func (n *Node) Walk(fn func(parent, node *Node, depth int)) {
	var walk func(parent, node *Node, depth int)
	walk = func(parent, node *Node, depth int) {
		fn(parent, node, depth)
		for _, c := range node.Children {
			if c != nil {
				walk(node, c, depth+1)
			}
		}
	}
	if n != nil {
		walk(nil, n, 0)
	}
}

// Topics lists every topic in pre-order.
func (n *Node) Topics() []string {
	var out []string
	n.Walk(func(_, node *Node, _ int) {
		out = append(out, node.Topic)
	})
	return out
}

// Size counts the nodes of the tree.
func (n *Node) Size() int {
	count := 0
	n.Walk(func(_, _ *Node, _ int) { count++ })
	return count
}

// Find returns the first node whose topic matches, ignoring case and
// surrounding whitespace.
func (n *Node) Find(topic string) *Node {
	want := topicKey(topic)
	var found *Node
	n.Walk(func(_, node *Node, _ int) {
		if found == nil && topicKey(node.Topic) == want {
			found = node
		}
	})
	return found
}

// MarshalIndent renders the tree as indented JSON, as shown to the model and
// to operators.
func (n *Node) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(n, "", "  ")
}

func topicKey(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// normalize trims topics and drops nil children in place.
func normalize(n *Node) {
	n.Topic = strings.TrimSpace(n.Topic)
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c != nil {
			normalize(c)
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		n.Children = nil
	} else {
		n.Children = kept
	}
}

// Graft re-attaches to merged every non-root topic of prev that merged no
// longer contains. A restored topic goes under the counterpart of its
// previous parent, or under the merged root when the parent is the previous
// root or is itself missing. The merged root may carry a different title than
// the previous root. Returns the number of restored topics.
func Graft(prev, merged *Node) int {
	if prev == nil || merged == nil {
		return 0
	}

	index := map[string]*Node{}
	merged.Walk(func(_, node *Node, _ int) {
		key := topicKey(node.Topic)
		if _, ok := index[key]; !ok {
			index[key] = node
		}
	})

	restored := 0
	counterpart := map[*Node]*Node{prev: merged}
	prev.Walk(func(parent, node *Node, _ int) {
		if parent == nil {
			return
		}
		key := topicKey(node.Topic)
		if existing, ok := index[key]; ok {
			counterpart[node] = existing
			return
		}

		target := counterpart[parent]
		if target == nil {
			target = merged
		}
		added := &Node{Topic: node.Topic}
		target.Children = append(target.Children, added)
		index[key] = added
		counterpart[node] = added
		restored++
	})
	return restored
}
