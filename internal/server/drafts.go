package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	agentcore "github.com/mohammad-safakhou/lumina/internal/agent/core"
)

var draftsTracer = otel.Tracer("lumina/server/drafts")

const draftFallbackHint = "Try a simpler topic or check API keys (GEMINI_API_KEY, TAVILY_API_KEY)"

// DraftsHandler exposes the agentic draft pipeline.
type DraftsHandler struct {
	Drafter Drafter
	// Timeout bounds one pipeline run; zero means no limit beyond the request.
	Timeout time.Duration
	Logger  *log.Logger
}

func (h *DraftsHandler) Register(g *echo.Group) {
	g.POST("/generate-draft", h.generate)
	g.POST("/generate-draft-stream", h.stream)
}

func (h *DraftsHandler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.Timeout > 0 {
		return context.WithTimeout(parent, h.Timeout)
	}
	return context.WithCancel(parent)
}

func (h *DraftsHandler) bind(c echo.Context) (DraftRequest, error) {
	var req DraftRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Instructions = strings.TrimSpace(req.Instructions)
	if req.Title == "" {
		return req, echo.NewHTTPError(http.StatusBadRequest, "Title is required")
	}
	if h.Drafter == nil {
		return req, echo.NewHTTPError(http.StatusServiceUnavailable, "draft pipeline not configured")
	}
	return req, nil
}

// Generate draft
//
//	@Summary		Generate a blog draft
//	@Description	Runs router, research, planning and writing and returns the HTML draft
//	@Tags			ai
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		DraftRequest	true	"Title and optional instructions"
//	@Success		200		{object}	DraftResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		500		{object}	DraftFailure
//	@Router			/api/ai/generate-draft [post]
func (h *DraftsHandler) generate(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	ctx, span := draftsTracer.Start(c.Request().Context(), "DraftsHandler.generate")
	defer span.End()
	ctx, cancel := h.runContext(ctx)
	defer cancel()

	content, err := h.Drafter.Run(ctx, req.Topic())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if h.Logger != nil {
			h.Logger.Printf("draft for %q failed: %v", req.Title, err)
		}
		return c.JSON(http.StatusInternalServerError, DraftFailure{
			Error:    "Agentic blog generation failed",
			Details:  err.Error(),
			Fallback: draftFallbackHint,
		})
	}
	span.SetAttributes(attribute.Int("draft.length", len(content)))
	return c.JSON(http.StatusOK, DraftResponse{Content: content})
}

// Stream draft
//
//	@Summary		Stream a blog draft
//	@Description	Server-sent events: log lines, then one result or error event, then {"type":"done"}
//	@Tags			ai
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			payload	body		DraftRequest	true	"Title and optional instructions"
//	@Success		200		{string}	string
//	@Failure		400		{object}	HTTPError
//	@Router			/api/ai/generate-draft-stream [post]
func (h *DraftsHandler) stream(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	ctx, span := draftsTracer.Start(c.Request().Context(), "DraftsHandler.stream")
	defer span.End()
	ctx, cancel := h.runContext(ctx)
	defer cancel()

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	write := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(b) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	res := h.Drafter.Stream(ctx, req.Topic())
	defer res.Close()
	for ev := range res.Events() {
		if err := write(ev); err != nil {
			span.RecordError(err)
			if h.Logger != nil {
				h.Logger.Printf("draft stream for %q: client gone: %v", req.Title, err)
			}
			return nil
		}
	}
	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if err := write(agentcore.ProgressEvent{Type: "done"}); err != nil && h.Logger != nil {
		h.Logger.Printf("draft stream for %q: write done: %v", req.Title, err)
	}
	return nil
}
