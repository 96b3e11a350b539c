package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlaskb/backend/internal/server/middleware"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
)

// GetRelationshipHandler reports how strongly two entities relate. Entities
// may be given by id or name; a pair with no path within two hops returns
// related=false.
func GetRelationshipHandler(c echo.Context) error {
	type relationshipResponse struct {
		Message  string  `json:"message,omitempty"`
		Related  bool    `json:"related"`
		Strength float64 `json:"strength"`
	}

	a := c.QueryParam("a")
	b := c.QueryParam("b")
	if a == "" || b == "" {
		return c.JSON(http.StatusBadRequest, relationshipResponse{Message: "Both a and b are required"})
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	strength, related, err := svc.GetRelationship(a, b)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			return c.JSON(http.StatusNotFound, relationshipResponse{Message: "Entity not found"})
		case errors.Is(err, common.ErrAmbiguousResolution):
			return c.JSON(http.StatusConflict, relationshipResponse{Message: "Name matches multiple entities"})
		}
		logger.Error("Failed to load relationship", "err", err)
		return c.JSON(http.StatusInternalServerError, relationshipResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, relationshipResponse{Related: related, Strength: strength})
}
