package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	agenttel "github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lumina/internal/helpers"
	"github.com/mohammad-safakhou/lumina/internal/search"
	"github.com/mohammad-safakhou/lumina/internal/store"
)

// AdminHandler holds maintenance endpoints. Routes are mounted behind RequireRole(ADMIN).
type AdminHandler struct {
	Store *store.Store
	Index *search.Index
	Stats  *agenttel.Telemetry
	Logger *log.Logger
}

func (h *AdminHandler) Register(g *echo.Group) {
	g.POST("/fix-summaries", h.fixSummaries)
	g.POST("/reindex", h.reindex)
	g.GET("/pipeline-stats", h.pipelineStats)
}

// Fix summaries
//
//	@Summary	Regenerate missing or placeholder summaries from content
//	@Tags		admin
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	FixSummariesResponse
//	@Failure	403	{object}	HTTPError
//	@Failure	500	{object}	HTTPError
//	@Router		/api/admin/fix-summaries [post]
func (h *AdminHandler) fixSummaries(c echo.Context) error {
	ctx := c.Request().Context()
	updates, err := h.Store.FixSummaries(ctx, helpers.DeriveSummary)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fix summaries")
	}
	if h.Index != nil && len(updates) > 0 {
		for _, u := range updates {
			p, err := h.Store.GetPost(ctx, u.ID)
			if err == nil {
				err = h.Index.Put(p)
			}
			if err != nil && h.Logger != nil {
				h.Logger.Printf("reindex post %s: %v", u.ID, err)
			}
		}
	}
	return c.JSON(http.StatusOK, FixSummariesResponse{
		Message: fmt.Sprintf("Fixed %d posts", len(updates)),
		Updates: updates,
	})
}

// Reindex
//
//	@Summary	Rebuild the full-text index from the database
//	@Tags		admin
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	MessageResponse
//	@Failure	503	{object}	HTTPError
//	@Router		/api/admin/reindex [post]
func (h *AdminHandler) reindex(c echo.Context) error {
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search is disabled")
	}
	posts, err := h.Store.ListPosts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch posts")
	}
	if err := h.Index.Rebuild(posts); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("Indexed %d posts", len(posts))})
}

// Pipeline stats
//
//	@Summary	Draft pipeline counters since process start
//	@Tags		admin
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	telemetry.Snapshot
//	@Router		/api/admin/pipeline-stats [get]
func (h *AdminHandler) pipelineStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Stats.GetMetrics())
}
