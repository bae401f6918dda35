package videocall

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
	api.POST("/calls", h.InitiateCall)
	api.GET("/calls", h.ListCalls)
	api.GET("/calls/:id", h.GetCall)
	api.POST("/calls/:id/join", h.JoinCall)
	api.POST("/calls/:id/end", h.EndCall)
	api.POST("/calls/:id/screen-share/start", h.StartScreenSharing)
	api.POST("/calls/:id/screen-share/stop", h.StopScreenSharing)
	api.GET("/calls/:id/screen-share", h.ScreenShareStatus)
	api.POST("/calls/:id/screen-share/request", h.RequestPermission)
	api.POST("/calls/:id/screen-share/grant/:userId", h.GrantPermission)
}

func (h *Handler) InitiateCall(c echo.Context) error {
	initiator, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var in InitiateCallInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.InitiateCall(c.Request().Context(), initiator, in)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *Handler) ListCalls(c echo.Context) error {
	user, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	calls, total, err := h.svc.ListCalls(c.Request().Context(), user, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(calls, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetCall(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	call, err := h.svc.GetCall(c.Request().Context(), user, callID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, call)
}

func (h *Handler) JoinCall(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	session, err := h.svc.JoinCall(c.Request().Context(), user, callID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) EndCall(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	call, err := h.svc.EndCall(c.Request().Context(), user, callID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, call)
}

func (h *Handler) StartScreenSharing(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	if err := h.svc.StartScreenSharing(c.Request().Context(), user, callID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) StopScreenSharing(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	if err := h.svc.StopScreenSharing(c.Request().Context(), user, callID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ScreenShareStatus(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	status, err := h.svc.GetScreenShareStatus(c.Request().Context(), user, callID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) RequestPermission(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	if err := h.svc.RequestScreenSharePermission(c.Request().Context(), user, callID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) GrantPermission(c echo.Context) error {
	user, callID, err := h.actorAndCall(c)
	if err != nil {
		return err
	}
	requesterID, perr := uuid.Parse(c.Param("userId"))
	if perr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.svc.GrantScreenSharePermission(c.Request().Context(), user, callID, requesterID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) actorAndCall(c echo.Context) (auth.Principal, uuid.UUID, error) {
	user, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Principal{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid call id")
	}
	return user, callID, nil
}
