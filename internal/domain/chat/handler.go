package chat

import (
	"io"
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
	api.POST("/chat/rooms", h.CreateRoom)
	api.GET("/chat/rooms", h.ListRooms)
	api.PUT("/chat/rooms/:id/settings", h.UpdateSettings)
	api.GET("/chat/rooms/:id/messages", h.ListMessages)
	api.POST("/chat/rooms/:id/messages", h.SendMessage)
	api.GET("/chat/rooms/:id/participants", h.ListParticipants)
	api.POST("/chat/rooms/:id/participants", h.AddParticipants)
	api.DELETE("/chat/rooms/:id/participants", h.RemoveParticipants)
	api.POST("/chat/rooms/:id/participants/:userId/promote", h.PromoteToAdmin)
	api.POST("/chat/rooms/:id/leave", h.LeaveRoom)
	api.POST("/chat/rooms/:id/read", h.MarkAsRead)
	api.POST("/chat/rooms/:id/typing", h.Typing)
	api.DELETE("/chat/rooms/:id/attachments/:attachmentId", h.DeleteAttachment)
}

func (h *Handler) CreateRoom(c echo.Context) error {
	actor, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var in CreateRoomInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	room, err := h.svc.CreateRoom(c.Request().Context(), actor, in)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusCreated, room)
}

func (h *Handler) ListRooms(c echo.Context) error {
	actor, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	rooms, total, err := h.svc.GetRooms(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rooms, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	var patch SettingsPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	room, err := h.svc.UpdateGroupSettings(c.Request().Context(), actor, roomID, patch)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) ListMessages(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	messages, total, err := h.svc.GetMessages(c.Request().Context(), actor, roomID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(messages, total, pg.Limit, pg.Offset))
}

// SendMessage accepts either a JSON body or a multipart form. The multipart
// form carries attachments under the "files" field alongside the message
// fields.
func (h *Handler) SendMessage(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}

	var in SendMessageInput
	if form, ferr := c.MultipartForm(); ferr == nil && form != nil {
		in.Body = c.FormValue("body")
		in.Type = c.FormValue("type")
		in.Priority = c.FormValue("priority")
		if raw := c.FormValue("reply_to_id"); raw != "" {
			replyTo, perr := uuid.Parse(raw)
			if perr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid reply_to_id")
			}
			in.ReplyToID = &replyTo
		}
		for _, fh := range form.File["files"] {
			f, oerr := fh.Open()
			if oerr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable attachment")
			}
			content, rerr := io.ReadAll(f)
			f.Close()
			if rerr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable attachment")
			}
			in.Uploads = append(in.Uploads, FileUpload{
				OriginalName: fh.Filename,
				MimeType:     fh.Header.Get("Content-Type"),
				Content:      content,
			})
		}
	} else if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.svc.SendMessage(c.Request().Context(), actor, roomID, in)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ListParticipants(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	participants, err := h.svc.GetParticipants(c.Request().Context(), actor, roomID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, participants)
}

type participantsRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (h *Handler) AddParticipants(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	var req participantsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddParticipants(c.Request().Context(), actor, roomID, req.UserIDs); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveParticipants(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	var req participantsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RemoveParticipants(c.Request().Context(), actor, roomID, req.UserIDs); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) PromoteToAdmin(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	targetID, perr := uuid.Parse(c.Param("userId"))
	if perr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.svc.PromoteToAdmin(c.Request().Context(), actor, roomID, targetID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LeaveRoom(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	if err := h.svc.LeaveRoom(c.Request().Context(), actor, roomID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAsRead(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	count, err := h.svc.MarkAsRead(c.Request().Context(), actor, roomID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.JSON(http.StatusOK, map[string]int{"marked": count})
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

func (h *Handler) Typing(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	var req typingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SendTypingIndicator(c.Request().Context(), actor, roomID, req.IsTyping); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) DeleteAttachment(c echo.Context) error {
	actor, roomID, err := h.actorAndRoom(c)
	if err != nil {
		return err
	}
	attachmentID, perr := uuid.Parse(c.Param("attachmentId"))
	if perr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid attachment id")
	}
	if err := h.svc.DeleteAttachment(c.Request().Context(), actor, roomID, attachmentID); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) actorAndRoom(c echo.Context) (auth.Principal, uuid.UUID, error) {
	actor, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Principal{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid room id")
	}
	return actor, roomID, nil
}
