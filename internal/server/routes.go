package server

import (
	"github.com/atlaskb/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Query routes
	apiRoutes.GET("/search", routes.SearchHandler)
	apiRoutes.POST("/answer", routes.AnswerHandler)
	apiRoutes.GET("/search/related", routes.RelatedSearchesHandler)

	// Entity routes
	apiRoutes.GET("/entities", routes.GetEntitiesHandler)
	apiRoutes.GET("/entities/:id", routes.GetEntityHandler)
	apiRoutes.POST("/entities/merge", routes.MergeEntitiesHandler)
	apiRoutes.GET("/relationships", routes.GetRelationshipHandler)

	// Batch job routes
	apiRoutes.POST("/jobs/extract", routes.QueueExtractHandler)
	apiRoutes.POST("/jobs/embed", routes.QueueEmbedHandler)
	apiRoutes.GET("/stats/embeddings", routes.GetEmbeddingStatsHandler)
}
