// Package retrieve fetches ranked evidence for a refined query.
package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/scitrue/internal/model"
)

// Retriever returns ranked evidence items for a query. k is the number of
// articles requested; the relevance filter is applied by the caller.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]model.EvidenceItem, error)
}

// decodeEvidence accepts a bare array or an object with an "evidence" array
func decodeEvidence(data []byte) ([]model.EvidenceItem, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []model.EvidenceItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
		return items, nil
	}

	var wrapper struct {
		Evidence []model.EvidenceItem `json:"evidence"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return wrapper.Evidence, nil
}

// FileRetriever serves evidence from a JSON fixture. The file holds either a
// single list returned for every query, or an object keyed by normalized query.
type FileRetriever struct {
	path string
}

// NewFileRetriever creates a retriever reading path on every call
func NewFileRetriever(path string) *FileRetriever {
	return &FileRetriever{path: path}
}

func (f *FileRetriever) Retrieve(ctx context.Context, query string, k int) ([]model.EvidenceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return decodeEvidence(data)
	}

	var byQuery map[string]json.RawMessage
	if err := json.Unmarshal(data, &byQuery); err != nil {
		return nil, fmt.Errorf("decode evidence file: %w", err)
	}
	if raw, ok := byQuery["evidence"]; ok && len(byQuery) == 1 {
		return decodeEvidence(raw)
	}
	raw, ok := byQuery[model.NormalizeClaim(query)]
	if !ok {
		return []model.EvidenceItem{}, nil
	}
	return decodeEvidence(raw)
}
