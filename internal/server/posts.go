package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/lumina/internal/helpers"
	"github.com/mohammad-safakhou/lumina/internal/search"
	"github.com/mohammad-safakhou/lumina/internal/store"
)

var postsTracer = otel.Tracer("lumina/server/posts")

type PostsHandler struct {
	Store  *store.Store
	Index  *search.Index
	Logger *log.Logger
	// now is stubbed in tests to pin slugs.
	now func() time.Time
}

func (h *PostsHandler) Register(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id", h.get)
	g.POST("", h.create, requireAuth)
	g.PUT("/:id", h.update, requireAuth)
	g.DELETE("/:id", h.remove, requireAuth)
}

func (h *PostsHandler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *PostsHandler) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

// List posts
//
//	@Summary	List posts newest first with author and comments
//	@Tags		posts
//	@Produce	json
//	@Success	200	{array}		store.Post
//	@Failure	500	{object}	HTTPError
//	@Router		/api/posts [get]
func (h *PostsHandler) list(c echo.Context) error {
	posts, err := h.Store.ListPosts(c.Request().Context())
	if err != nil {
		h.logf("list posts: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch posts")
	}
	return c.JSON(http.StatusOK, posts)
}

// Search posts
//
//	@Summary	Full-text search over title, summary, content and tags
//	@Tags		posts
//	@Produce	json
//	@Param		q	query		string	true	"Query string"
//	@Success	200	{object}	SearchResponse
//	@Failure	503	{object}	HTTPError
//	@Router		/api/posts/search [get]
func (h *PostsHandler) search(c echo.Context) error {
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search is disabled")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	hits, err := h.Index.Search(q, search.DefaultLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	out := SearchResponse{Query: q, Posts: make([]store.Post, 0, len(hits))}
	for _, hit := range hits {
		p, err := h.Store.GetPost(ctx, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			// stale index entry
			_ = h.Index.Delete(hit.ID)
			continue
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch posts")
		}
		out.Posts = append(out.Posts, p)
	}
	return c.JSON(http.StatusOK, out)
}

// Get post
//
//	@Summary	Get a post with its comments
//	@Tags		posts
//	@Produce	json
//	@Param		id	path		string	true	"Post ID"
//	@Success	200	{object}	store.Post
//	@Failure	404	{object}	HTTPError
//	@Router		/api/posts/{id} [get]
func (h *PostsHandler) get(c echo.Context) error {
	p, err := h.Store.GetPost(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}
	if err != nil {
		h.logf("get post: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch post")
	}
	return c.JSON(http.StatusOK, p)
}

func validateStatus(s *string) error {
	if s != nil && !store.ValidStatus(*s) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
	}
	return nil
}

func normalizeCover(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	u, err := helpers.NormalizeImageURL(*raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid url")
	}
	return &u, nil
}

// Create post
//
//	@Summary	Create a post
//	@Tags		posts
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		PostRequest	true	"Post payload"
//	@Success	201		{object}	store.Post
//	@Failure	400		{object}	HTTPError
//	@Failure	401		{object}	HTTPError
//	@Router		/api/posts [post]
func (h *PostsHandler) create(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	ctx, span := postsTracer.Start(c.Request().Context(), "PostsHandler.create")
	defer span.End()

	var req PostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Title is required")
	}
	if req.Content == nil || strings.TrimSpace(*req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Content is required")
	}
	if err := validateStatus(req.Status); err != nil {
		return err
	}
	cover, err := normalizeCover(req.CoverImage)
	if err != nil {
		return err
	}

	in := store.NewPost{
		Title:       strings.TrimSpace(*req.Title),
		Content:     helpers.SanitizeContent(*req.Content),
		Status:      store.StatusDraft,
		ScheduledAt: req.ScheduledAt.Value,
		AuthorID:    uid,
	}
	in.Slug = helpers.Slugify(in.Title, h.clock())
	summary := ""
	if req.Summary != nil {
		summary = *req.Summary
	}
	in.Summary = helpers.ResolveSummary(summary, in.Content)
	if req.Tags != nil {
		in.Tags = *req.Tags
	}
	if cover != nil {
		in.CoverImage = *cover
	}
	if req.Status != nil {
		in.Status = *req.Status
	}

	post, err := h.Store.CreatePost(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logf("create post: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create post")
	}
	span.SetAttributes(attribute.String("post_id", post.ID))
	h.reindex(post)
	return c.JSON(http.StatusCreated, post)
}

// authorize allows the post's author and admins.
func (h *PostsHandler) authorize(ctx context.Context, c echo.Context, postID string) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	author, err := h.Store.PostAuthor(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if role, _ := c.Get("role").(string); author != uid && role != store.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "Not allowed to modify this post")
	}
	return nil
}

// Update post
//
//	@Summary	Partially update a post
//	@Tags		posts
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string		true	"Post ID"
//	@Param		payload	body		PostRequest	true	"Fields to change"
//	@Success	200		{object}	store.Post
//	@Failure	400		{object}	HTTPError
//	@Failure	403		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/posts/{id} [put]
func (h *PostsHandler) update(c echo.Context) error {
	id := c.Param("id")
	ctx, span := postsTracer.Start(c.Request().Context(), "PostsHandler.update")
	defer span.End()
	span.SetAttributes(attribute.String("post_id", id))

	var req PostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Title is required")
	}
	if req.Content != nil && strings.TrimSpace(*req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Content is required")
	}
	if err := validateStatus(req.Status); err != nil {
		return err
	}
	cover, err := normalizeCover(req.CoverImage)
	if err != nil {
		return err
	}
	if err := h.authorize(ctx, c, id); err != nil {
		return err
	}

	patch := store.PostPatch{
		Status:     req.Status,
		CoverImage: cover,
		Summary:    req.Summary,
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		patch.Title = &t
	}
	if req.Tags != nil {
		patch.Tags = *req.Tags
		if patch.Tags == nil {
			patch.Tags = []string{}
		}
	}
	if req.ScheduledAt.Set {
		patch.ScheduledAt = req.ScheduledAt.Value
		patch.ClearSchedule = req.ScheduledAt.Value == nil
	}
	if req.Content != nil {
		content := helpers.SanitizeContent(*req.Content)
		patch.Content = &content
		summary := ""
		if req.Summary != nil {
			summary = *req.Summary
		}
		resolved := helpers.ResolveSummary(summary, content)
		patch.Summary = &resolved
	}

	post, err := h.Store.UpdatePost(ctx, id, patch)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logf("update post %s: %v", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update post")
	}
	h.reindex(post)
	return c.JSON(http.StatusOK, post)
}

// Delete post
//
//	@Summary	Delete a post and its comments
//	@Tags		posts
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Post ID"
//	@Success	204
//	@Failure	403	{object}	HTTPError
//	@Failure	404	{object}	HTTPError
//	@Router		/api/posts/{id} [delete]
func (h *PostsHandler) remove(c echo.Context) error {
	id := c.Param("id")
	ctx, span := postsTracer.Start(c.Request().Context(), "PostsHandler.remove")
	defer span.End()
	span.SetAttributes(attribute.String("post_id", id))

	if err := h.authorize(ctx, c, id); err != nil {
		return err
	}
	err := h.Store.DeletePost(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}
	if err != nil {
		span.RecordError(err)
		h.logf("delete post %s: %v", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete post")
	}
	if h.Index != nil {
		if err := h.Index.Delete(id); err != nil {
			h.logf("unindex post %s: %v", id, err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PostsHandler) reindex(p store.Post) {
	if h.Index == nil {
		return
	}
	if err := h.Index.Put(p); err != nil {
		h.logf("index post %s: %v", p.ID, err)
	}
}
