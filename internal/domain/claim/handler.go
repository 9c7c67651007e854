package claim

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/rcm/internal/platform/auth"
	"github.com/ehr/rcm/internal/platform/blobstore"
)

type Handler struct {
	repo  Repository
	blobs blobstore.BlobStore
}

func NewHandler(repo Repository, blobs blobstore.BlobStore) *Handler {
	return &Handler{repo: repo, blobs: blobs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	g.GET("/claims/:id/edi", h.DownloadEDI)
}

// DownloadEDI streams the batch file attached to a claim.
func (h *Handler) DownloadEDI(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "claim not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !cl.HasFile() {
		return echo.NewHTTPError(http.StatusNotFound, "claim has no edi file")
	}
	return blobstore.Serve(c, h.blobs, *cl.EDIFile)
}
