package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/lumina/internal/uploads"
)

type UploadHandler struct {
	Uploads *uploads.Store
}

func (h *UploadHandler) Register(g *echo.Group) {
	g.POST("", h.upload)
}

// Upload image
//
//	@Summary	Upload an image to object storage
//	@Tags		upload
//	@Security	BearerAuth
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		image	formData	file	true	"jpg, jpeg, png or webp"
//	@Success	200		{object}	UploadResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/upload [post]
func (h *UploadHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	if _, err := uploads.ContentType(fh.Filename); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Error: Images Only!")
	}
	if h.Uploads == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, uploads.ErrNotConfigured.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	url, err := h.Uploads.Put(c.Request().Context(), fh.Filename, f, fh.Size)
	switch {
	case errors.Is(err, uploads.ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusBadRequest, "Error: Images Only!")
	case errors.Is(err, uploads.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store upload")
	}
	return c.JSON(http.StatusOK, UploadResponse{URL: url})
}
