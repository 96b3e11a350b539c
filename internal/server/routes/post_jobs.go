package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/atlaskb/backend/internal/queue"
	"github.com/atlaskb/backend/internal/server/middleware"
	"github.com/atlaskb/backend/pkg/logger"
)

type jobResponse struct {
	Message string `json:"message"`
}

// QueueExtractHandler queues the entity extraction batch.
func QueueExtractHandler(c echo.Context) error {
	return queueJob(c, queue.ExtractQueue, "Queued extraction batch")
}

// QueueEmbedHandler queues the embedding back-fill batch.
func QueueEmbedHandler(c echo.Context) error {
	return queueJob(c, queue.EmbedQueue, "Queued embedding batch")
}

func queueJob(c echo.Context, queueName, message string) error {
	app := c.(*middleware.AppContext).App
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, jobResponse{Message: "Job queue not configured"})
	}

	msgBytes, err := json.Marshal(queue.JobMsg{
		Message:     message,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, jobResponse{Message: "Internal server error"})
	}

	if err := queue.PublishFIFO(app.Queue, queueName, msgBytes); err != nil {
		logger.Error("Failed to queue job", "queue", queueName, "err", err)
		return c.JSON(http.StatusInternalServerError, jobResponse{Message: "Failed to queue job"})
	}

	return c.JSON(http.StatusAccepted, jobResponse{Message: message})
}

// GetEmbeddingStatsHandler reports embedding index coverage.
func GetEmbeddingStatsHandler(c echo.Context) error {
	svc := c.(*middleware.AppContext).App.Knowledge
	stats, err := svc.EmbeddingStats(c.Request().Context())
	if err != nil {
		logger.Error("Failed to load embedding stats", "err", err)
		return c.JSON(http.StatusInternalServerError, jobResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, stats)
}
