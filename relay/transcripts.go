package relay

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pentestai/pentestai/pkg/llm"
	"github.com/pentestai/pentestai/pkg/transcript"
)

// HistoryResponse contains the conversation leading up to a recorded message.
type HistoryResponse struct {
	// Messages in chronological order (oldest first, up to and including the requested node)
	Messages []HistoryMessage `json:"messages"`
	// HeadHash is the hash of the node that was requested
	HeadHash string `json:"head_hash"`
	// Depth is the number of messages in the history
	Depth int `json:"depth"`
}

// HistoryMessage represents a message in a recorded conversation.
type HistoryMessage struct {
	Hash       string  `json:"hash"`
	ParentHash *string `json:"parent_hash,omitempty"`
	Role       string  `json:"role"`
	Content    string  `json:"content"`
	Model      string  `json:"model,omitempty"`
}

// TranscriptList is the body of GET /api/transcripts.
type TranscriptList struct {
	Count     int               `json:"count"`
	Histories []HistoryResponse `json:"histories"`
}

// handleListTranscripts returns every recorded conversation, one per leaf node.
func (r *Relay) handleListTranscripts(c *fiber.Ctx) error {
	if r.storer == nil {
		return c.JSON(TranscriptList{Histories: []HistoryResponse{}})
	}
	ctx := c.UserContext()

	leaves, err := r.storer.Leaves(ctx)
	if err != nil {
		r.logger.Error("failed to get leaves", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list transcripts"})
	}

	histories := make([]HistoryResponse, 0, len(leaves))
	for _, leaf := range leaves {
		history, err := r.buildHistory(ctx, leaf.Hash)
		if err != nil {
			r.logger.Warn("failed to build history for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		histories = append(histories, *history)
	}

	return c.JSON(TranscriptList{Count: len(histories), Histories: histories})
}

// handleGetTranscript returns the conversation leading up to a given node.
func (r *Relay) handleGetTranscript(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if r.storer == nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "transcripts are disabled"})
	}

	history, err := r.buildHistory(c.UserContext(), hash)
	if err != nil {
		var nf transcript.ErrNotFound
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
		}
		r.logger.Error("failed to build history", zap.String("hash", hash), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load transcript"})
	}

	return c.JSON(history)
}

func (r *Relay) buildHistory(ctx context.Context, hash string) (*HistoryResponse, error) {
	// Ancestry is newest first
	ancestry, err := transcript.Ancestry(ctx, r.storer, hash)
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, len(ancestry))
	for i, node := range ancestry {
		messages[len(ancestry)-1-i] = HistoryMessage{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Role:       node.Content.Role,
			Content:    node.Content.Content,
			Model:      node.Content.Model,
		}
	}

	return &HistoryResponse{
		Messages: messages,
		HeadHash: hash,
		Depth:    len(messages),
	}, nil
}
