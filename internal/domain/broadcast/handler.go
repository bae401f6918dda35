package broadcast

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/apperror"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/broadcasts", h.SendBroadcast)
	api.POST("/broadcasts/medical-alert", h.SendUrgentMedicalAlert)
	api.GET("/broadcasts", h.History)
	api.GET("/broadcasts/:id", h.GetBroadcast)
}

func (h *Handler) SendBroadcast(c echo.Context) error {
	sender, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var in SendBroadcastInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SendBroadcast(c.Request().Context(), sender, in)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) SendUrgentMedicalAlert(c echo.Context) error {
	sender, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var in UrgentMedicalAlertInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SendUrgentMedicalAlert(c.Request().Context(), sender, in)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) History(c echo.Context) error {
	viewer, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	filter := HistoryFilter{
		Severity: c.QueryParam("severity"),
		Type:     c.QueryParam("type"),
		Status:   c.QueryParam("status"),
	}
	pg := pagination.FromContext(c)
	broadcasts, total, err := h.svc.GetBroadcastHistory(c.Request().Context(), viewer, filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(broadcasts, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBroadcast(c echo.Context) error {
	viewer, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBroadcast(c.Request().Context(), viewer, id)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, b)
}
