package store

import (
	"strings"
	"sync"
	"time"

	"github.com/brinewave/mqttd/types/message"
)

// retainedNode is one node of the retained-message trie. Named children only;
// wildcards never carry a retained message, matching the subscription trie's
// layout in package topic.
type retainedNode struct {
	mu       sync.RWMutex
	children map[string]*retainedNode
	msg      *message.Message
}

func newRetainedNode() *retainedNode {
	return &retainedNode{children: make(map[string]*retainedNode)}
}

// RetainedIndex holds the single latest retained message per topic.
type RetainedIndex struct {
	mu    sync.RWMutex
	root  *retainedNode
	count int
}

func NewRetainedIndex() *RetainedIndex {
	return &RetainedIndex{root: newRetainedNode()}
}

func splitTopic(topic string) []string {
	if topic == "" {
		return nil
	}
	levels := make([]string, 0, 8)
	start := 0
	for i := 0; i < len(topic); i++ {
		if topic[i] == '/' {
			levels = append(levels, topic[start:i])
			start = i + 1
		}
	}
	return append(levels, topic[start:])
}

// Set stores msg as the retained message for its topic, or removes the
// retained entry when msg has an empty payload.
func (r *RetainedIndex) Set(msg *message.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(msg.Payload) == 0 {
		r.removeLocked(msg.Topic)
		return
	}

	levels := splitTopic(msg.Topic)
	node := r.root
	for _, level := range levels {
		child := node.children[level]
		if child == nil {
			child = newRetainedNode()
			node.children[level] = child
		}
		node = child
	}

	if node.msg == nil {
		r.count++
	}
	node.msg = msg
}

func (r *RetainedIndex) removeLocked(topic string) {
	levels := splitTopic(topic)
	path := make([]*retainedNode, 0, len(levels)+1)
	path = append(path, r.root)
	node := r.root
	for _, level := range levels {
		child := node.children[level]
		if child == nil {
			return
		}
		path = append(path, child)
		node = child
	}

	if node.msg != nil {
		node.msg = nil
		r.count--
	}

	for i := len(path) - 1; i > 0; i-- {
		current, parent := path[i], path[i-1]
		if current.msg != nil || len(current.children) > 0 {
			break
		}
		for key, child := range parent.children {
			if child == current {
				delete(parent.children, key)
				break
			}
		}
	}
}

// Count returns the number of live (non-expired-by-deletion) retained
// messages. Lazily-expired messages are still counted until the next access
// through Match or Get observes and evicts them.
func (r *RetainedIndex) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Get returns the retained message at an exact topic, if any and not expired.
func (r *RetainedIndex) Get(topic string) *message.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node := r.root
	for _, level := range splitTopic(topic) {
		node = node.children[level]
		if node == nil {
			return nil
		}
	}
	if node.msg == nil || node.msg.IsExpired() {
		return nil
	}
	return node.msg
}

// Match walks the retained trie the same way topic.Trie walks subscriptions,
// returning every live retained message whose topic matches filter. A filter
// whose first segment is "+" or "#" never descends into a "$"-prefixed
// top-level child; a literal first segment (including "$SYS") may.
func (r *RetainedIndex) Match(filter string) []*message.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	levels := splitTopic(filter)
	var out []*message.Message
	matchRetained(r.root, levels, 0, &out)
	return out
}

func matchRetained(node *retainedNode, levels []string, depth int, out *[]*message.Message) {
	if depth == len(levels) {
		if node.msg != nil && !node.msg.IsExpired() {
			*out = append(*out, node.msg)
		}
		return
	}

	level := levels[depth]

	switch level {
	case "#":
		for name, child := range node.children {
			if depth == 0 && strings.HasPrefix(name, "$") {
				continue
			}
			collectRetained(child, out)
		}
		if node.msg != nil && !node.msg.IsExpired() {
			*out = append(*out, node.msg)
		}
	case "+":
		for name, child := range node.children {
			if depth == 0 && strings.HasPrefix(name, "$") {
				continue
			}
			matchRetained(child, levels, depth+1, out)
		}
	default:
		if child := node.children[level]; child != nil {
			matchRetained(child, levels, depth+1, out)
		}
	}
}

func collectRetained(node *retainedNode, out *[]*message.Message) {
	if node.msg != nil && !node.msg.IsExpired() {
		*out = append(*out, node.msg)
	}
	for _, child := range node.children {
		collectRetained(child, out)
	}
}
