package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/atlaskb/backend/internal/server/middleware"
	"github.com/atlaskb/backend/pkg/common"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/search"
)

const defaultSearchK = 10

type searchQuery struct {
	Query    string `query:"q" validate:"required"`
	K        int    `query:"k"`
	Category string `query:"category"`
	From     string `query:"from"`
	To       string `query:"to"`
}

func (q *searchQuery) filter() (search.Filter, error) {
	return buildFilter(q.Category, q.From, q.To)
}

// buildFilter assembles the shared search filter; from and to are
// YYYY-MM-DD strings or empty.
func buildFilter(category, from, to string) (search.Filter, error) {
	filter := search.Filter{Category: category}
	if from != "" {
		parsed, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = parsed
	}
	if to != "" {
		parsed, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return filter, err
		}
		filter.DateTo = parsed
	}
	return filter, nil
}

// SearchHandler runs hybrid search for a query string.
func SearchHandler(c echo.Context) error {
	type searchResponse struct {
		Message  string                `json:"message,omitempty"`
		Results  []common.SearchResult `json:"results"`
		Degraded bool                  `json:"degraded"`
	}

	data := new(searchQuery)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{Message: "Invalid query"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{Message: "Invalid query"})
	}
	if data.K <= 0 {
		data.K = defaultSearchK
	}
	filter, err := data.filter()
	if err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{Message: "Invalid date filter"})
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	results, degraded, err := svc.Search(c.Request().Context(), data.Query, data.K, filter)
	if err != nil {
		logger.Error("Search failed", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{Message: "Internal server error"})
	}
	if results == nil {
		results = []common.SearchResult{}
	}

	return c.JSON(http.StatusOK, searchResponse{Results: results, Degraded: degraded})
}

// RelatedSearchesHandler suggests follow-up queries from the graph.
func RelatedSearchesHandler(c echo.Context) error {
	type relatedResponse struct {
		Message     string   `json:"message,omitempty"`
		Suggestions []string `json:"suggestions"`
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, relatedResponse{Message: "Missing query"})
	}

	svc := c.(*middleware.AppContext).App.Knowledge
	suggestions := svc.RelatedSearches(query, 10)
	if suggestions == nil {
		suggestions = []string{}
	}
	return c.JSON(http.StatusOK, relatedResponse{Suggestions: suggestions})
}
