package encounter

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/rcm/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	g.GET("/encounters/:id", h.GetEncounter)
	g.POST("/encounters/:id/transitions", h.TransitionEncounter)
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	enc, err := h.svc.GetEncounter(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "encounter not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, enc)
}

// TransitionEncounter applies a workflow move requested by an upstream
// clinical or billing user. Guarded moves (sent, completed_confirmed) need
// evidence only the pipelines hold, so they are rejected here.
func (h *Handler) TransitionEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	enc, err := h.svc.Transition(c.Request().Context(), id, to, Evidence{})
	if err != nil {
		var invalid *InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			return c.JSON(http.StatusConflict, map[string]string{
				"error": invalid.Error(),
				"from":  string(invalid.From),
				"to":    string(invalid.To),
			})
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "encounter not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, enc)
}
