package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atlaskb/backend/pkg/knowledge"
	"github.com/atlaskb/backend/pkg/logger"
)

// JobMsg is one batch job request. Batch jobs are idempotent, so replaying a
// message after a crash or retry is always safe.
type JobMsg struct {
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requested_at"`
}

// ProcessExtractMessage runs the entity extraction batch over all documents
// not yet processed.
func ProcessExtractMessage(ctx context.Context, svc *knowledge.Service, body string) error {
	var data JobMsg
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Errorf("failed to unmarshal extract message: %w", err)
	}

	stats, err := svc.ExtractAll(ctx)
	if err != nil {
		return fmt.Errorf("extraction batch failed: %w", err)
	}
	logger.Info("[Queue] Extraction batch done",
		"total", stats.Total, "processed", stats.Processed, "failed", stats.Failed, "degraded", stats.Degraded)
	return nil
}

// ProcessEmbedMessage back-fills embeddings for documents missing a vector
// under the current model version.
func ProcessEmbedMessage(ctx context.Context, svc *knowledge.Service, body string) error {
	var data JobMsg
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return fmt.Errorf("failed to unmarshal embed message: %w", err)
	}

	stats, err := svc.EmbedAll(ctx)
	if err != nil {
		return fmt.Errorf("embedding batch failed: %w", err)
	}
	logger.Info("[Queue] Embedding batch done",
		"total", stats.Total, "embedded", stats.Embedded, "failed", stats.Failed, "version", stats.ModelVersion)
	return nil
}
