package transcript

import (
	"context"
	"sync"
)

// DefaultMaxNodes caps a MemoryStorer created without WithMaxNodes.
const DefaultMaxNodes = 10000

// MemoryStorer keeps nodes in process memory. When full, the oldest node is
// evicted together with everything recorded below it, so no stored node ever
// points at a missing parent.
type MemoryStorer struct {
	mu       sync.RWMutex
	maxNodes int
	nodes    map[string]*Node
	order    []string
	children map[string][]string
}

// MemoryOption configures a MemoryStorer.
type MemoryOption func(*MemoryStorer)

// WithMaxNodes caps the number of stored nodes. n <= 0 means no cap.
func WithMaxNodes(n int) MemoryOption {
	return func(m *MemoryStorer) { m.maxNodes = n }
}

// NewMemoryStorer returns an empty in-memory store holding at most DefaultMaxNodes nodes.
func NewMemoryStorer(opts ...MemoryOption) *MemoryStorer {
	m := &MemoryStorer{
		maxNodes: DefaultMaxNodes,
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStorer) Put(ctx context.Context, node *Node) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[node.Hash]; ok {
		return false, nil
	}
	if m.maxNodes > 0 && len(m.nodes) >= m.maxNodes {
		m.makeRoomLocked(node)
	}

	m.nodes[node.Hash] = node
	m.order = append(m.order, node.Hash)
	if node.ParentHash != nil {
		m.children[*node.ParentHash] = append(m.children[*node.ParentHash], node.Hash)
	}
	return true, nil
}

// makeRoomLocked evicts the oldest subtrees until node fits, sparing node's ancestors.
func (m *MemoryStorer) makeRoomLocked(node *Node) {
	keep := make(map[string]bool)
	for p := node.ParentHash; p != nil; {
		keep[*p] = true
		parent, ok := m.nodes[*p]
		if !ok {
			break
		}
		p = parent.ParentHash
	}

	for i := 0; i < len(m.order) && len(m.nodes) >= m.maxNodes; i++ {
		h := m.order[i]
		if _, ok := m.nodes[h]; !ok || keep[h] {
			continue
		}
		m.evictLocked(h)
	}
	m.compactLocked()
}

func (m *MemoryStorer) evictLocked(hash string) {
	node, ok := m.nodes[hash]
	if !ok {
		return
	}
	for _, child := range m.children[hash] {
		m.evictLocked(child)
	}
	delete(m.children, hash)
	delete(m.nodes, hash)

	if node.ParentHash != nil {
		siblings := m.children[*node.ParentHash]
		for i, h := range siblings {
			if h == hash {
				m.children[*node.ParentHash] = append(siblings[:i:i], siblings[i+1:]...)
				break
			}
		}
	}
}

// compactLocked drops evicted hashes from the insertion order.
func (m *MemoryStorer) compactLocked() {
	order := m.order[:0]
	for _, h := range m.order {
		if _, ok := m.nodes[h]; ok {
			order = append(order, h)
		}
	}
	m.order = order
}

func (m *MemoryStorer) Get(ctx context.Context, hash string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[hash]
	if !ok {
		return nil, ErrNotFound{Hash: hash}
	}
	return node, nil
}

func (m *MemoryStorer) List(ctx context.Context) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Node, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.nodes[h])
	}
	return out, nil
}

func (m *MemoryStorer) Leaves(ctx context.Context) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Node
	for _, h := range m.order {
		if len(m.children[h]) == 0 {
			out = append(out, m.nodes[h])
		}
	}
	return out, nil
}

func (m *MemoryStorer) Close() error {
	return nil
}
