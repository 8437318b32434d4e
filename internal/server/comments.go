package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/lumina/internal/helpers"
	"github.com/mohammad-safakhou/lumina/internal/store"
)

type CommentsHandler struct {
	Store *store.Store
}

func (h *CommentsHandler) Register(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.GET("", h.list)
	g.POST("", h.create, requireAuth)
}

// List comments
//
//	@Summary	Comments of a post, newest first
//	@Tags		comments
//	@Produce	json
//	@Param		postId	path	string	true	"Post ID"
//	@Success	200		{array}	store.Comment
//	@Router		/api/posts/{postId}/comments [get]
func (h *CommentsHandler) list(c echo.Context) error {
	comments, err := h.Store.ListComments(c.Request().Context(), c.Param("postId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch comments")
	}
	return c.JSON(http.StatusOK, comments)
}

// Create comment
//
//	@Summary	Comment on a post
//	@Tags		comments
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		postId	path		string			true	"Post ID"
//	@Param		payload	body		CommentRequest	true	"Comment"
//	@Success	201		{object}	store.Comment
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/posts/{postId}/comments [post]
func (h *CommentsHandler) create(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req CommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	content := helpers.PlainText(req.Content)
	if strings.TrimSpace(content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Comment content is required")
	}
	comment, err := h.Store.CreateComment(c.Request().Context(), c.Param("postId"), uid, content)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create comment")
	}
	return c.JSON(http.StatusCreated, comment)
}
