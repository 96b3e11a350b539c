package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlaskb/backend/internal/server/middleware"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/knowledge"
	"github.com/atlaskb/backend/pkg/logger"
)

// GetEntitiesHandler lists entities ranked by mention count, optionally
// filtered by type.
func GetEntitiesHandler(c echo.Context) error {
	type entitiesResponse struct {
		Message  string          `json:"message,omitempty"`
		Entities []common.Entity `json:"entities"`
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	entities := svc.ListEntities()

	if typeFilter := c.QueryParam("type"); typeFilter != "" {
		if !common.ValidEntityType(common.EntityType(typeFilter)) {
			return c.JSON(http.StatusBadRequest, entitiesResponse{Message: "Unknown entity type"})
		}
		filtered := entities[:0]
		for _, entity := range entities {
			if entity.Type == common.EntityType(typeFilter) {
				filtered = append(filtered, entity)
			}
		}
		entities = filtered
	}
	if entities == nil {
		entities = []common.Entity{}
	}

	return c.JSON(http.StatusOK, entitiesResponse{Entities: entities})
}

// GetEntityHandler returns one entity with its graph neighborhood. The id
// segment accepts an entity id or a name.
func GetEntityHandler(c echo.Context) error {
	type entityResponse struct {
		Message string `json:"message,omitempty"`
		*knowledge.EntityDetails
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	details, err := svc.GetEntity(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			return c.JSON(http.StatusNotFound, entityResponse{Message: "Entity not found"})
		case errors.Is(err, common.ErrAmbiguousResolution):
			return c.JSON(http.StatusConflict, entityResponse{Message: "Name matches multiple entities"})
		}
		logger.Error("Failed to load entity", "err", err)
		return c.JSON(http.StatusInternalServerError, entityResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, entityResponse{EntityDetails: details})
}

// MergeEntitiesHandler folds one entity into another.
func MergeEntitiesHandler(c echo.Context) error {
	type mergeBody struct {
		Source string `json:"source" validate:"required"`
		Target string `json:"target" validate:"required"`
	}

	type mergeResponse struct {
		Message string         `json:"message,omitempty"`
		Entity  *common.Entity `json:"entity,omitempty"`
	}

	data := new(mergeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, mergeResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, mergeResponse{Message: "Invalid request body"})
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	merged, err := svc.MergeEntities(data.Source, data.Target)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return c.JSON(http.StatusNotFound, mergeResponse{Message: "Entity not found"})
		}
		logger.Error("Failed to merge entities", "err", err)
		return c.JSON(http.StatusInternalServerError, mergeResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, mergeResponse{Entity: merged})
}
