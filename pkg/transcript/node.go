// Package transcript records relayed conversations as content-addressed nodes.
//
// Each message is a node whose hash covers its content and its parent's hash,
// so identical conversation prefixes collapse into the same chain and a
// different reply branches from the shared prefix.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pentestai/pentestai/pkg/llm"
)

// Node is a single recorded message.
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous message; nil for the first message.
	ParentHash *string `json:"parent_hash"`

	Content llm.ConversationTurn `json:"content"`
}

type hashInput struct {
	Content llm.ConversationTurn `json:"content"`
	Parent  string               `json:"parent,omitempty"`
}

// NewNode creates a node for content linked under parent (nil for a root).
func NewNode(content llm.ConversationTurn, parent *Node) *Node {
	if content.Type == "" {
		content.Type = "message"
	}
	n := &Node{Content: content}
	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}
	n.Hash = n.computeHash()
	return n
}

// Verify reports whether the node's hash matches its content.
func (n *Node) Verify() bool {
	return n.Hash == n.computeHash()
}

func (n *Node) computeHash() string {
	i := hashInput{Content: n.Content}
	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Struct field order makes the encoding deterministic
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
