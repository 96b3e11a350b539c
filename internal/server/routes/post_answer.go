package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atlaskb/backend/internal/server/middleware"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
)

// AnswerHandler runs hybrid search and synthesizes a cited answer. The
// answer text is optional: when a collaborator is down the response still
// carries ranked results with the degraded flag set.
func AnswerHandler(c echo.Context) error {
	type answerBody struct {
		Query    string `json:"query" validate:"required"`
		K        int    `json:"k"`
		Category string `json:"category"`
		From     string `json:"from"`
		To       string `json:"to"`
	}

	type answerResponse struct {
		Message string `json:"message,omitempty"`
		*common.Answer
	}

	data := new(answerBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, answerResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, answerResponse{Message: "Invalid request body"})
	}
	if data.K <= 0 {
		data.K = defaultSearchK
	}
	filter, err := buildFilter(data.Category, data.From, data.To)
	if err != nil {
		return c.JSON(http.StatusBadRequest, answerResponse{Message: "Invalid date filter"})
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	answer, err := svc.Answer(c.Request().Context(), data.Query, data.K, filter)
	if err != nil {
		logger.Error("Answer failed", "err", err)
		return c.JSON(http.StatusInternalServerError, answerResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, answerResponse{Answer: answer})
}
