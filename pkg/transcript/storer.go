package transcript

import "context"

// Storer persists transcript nodes. Put is idempotent: storing a node whose
// hash already exists is a no-op.
type Storer interface {
	// Put stores a node and reports whether it was new.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get retrieves a node by its hash. Returns ErrNotFound if the node doesn't exist.
	Get(ctx context.Context, hash string) (*Node, error)

	// List returns all nodes in insertion order.
	List(ctx context.Context) ([]*Node, error)

	// Leaves returns all nodes with no children, i.e. the latest message of every conversation.
	Leaves(ctx context.Context) ([]*Node, error)

	// Close releases any resources.
	Close() error
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// Ancestry returns the chain from hash back to its root (node first, root last).
func Ancestry(ctx context.Context, s Storer, hash string) ([]*Node, error) {
	var chain []*Node
	for {
		node, err := s.Get(ctx, hash)
		if err != nil {
			return nil, err
		}
		chain = append(chain, node)
		if node.ParentHash == nil {
			return chain, nil
		}
		hash = *node.ParentHash
	}
}

// Record stores history followed by the new messages as one chain and
// returns the hash of the last node.
func Record(ctx context.Context, s Storer, nodes []*Node) (string, error) {
	var head string
	for _, n := range nodes {
		if _, err := s.Put(ctx, n); err != nil {
			return "", err
		}
		head = n.Hash
	}
	return head, nil
}
