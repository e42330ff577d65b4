package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dm-api/internal/model"
	"github.com/shinyyama/dm-api/internal/service"
)

type MessageHandler struct {
	svc service.MessageService
}

func NewMessageHandler(svc service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type MessageResponse struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	Kind         model.Kind        `json:"kind"`
	To           string            `json:"to"`
	From         string            `json:"from"`
	Body         string            `json:"body"`
	ParentID     string            `json:"parentId,omitempty"`
	QuickReplies map[string]string `json:"quickReplies,omitempty"`
}

type SendDMRequest struct {
	From         string            `json:"from"`
	Message      string            `json:"message"`
	QuickReplies map[string]string `json:"quickReplies"`
}

type ReplyRequest struct {
	Reply string `json:"reply"`
}

func (h *MessageHandler) ListDMs(c echo.Context) error {
	dms, err := h.svc.ListDMs(c.Request().Context(), c.Param("username"))
	if err != nil {
		return writeServiceError(c, err)
	}
	resp := make([]MessageResponse, 0, len(dms))
	for _, dm := range dms {
		resp = append(resp, toDMResponse(dm))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) SendDM(c echo.Context) error {
	var req SendDMRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest)
	}
	dm, err := h.svc.SendDM(c.Request().Context(), c.Param("username"), req.From, req.Message, req.QuickReplies)
	if err != nil {
		return writeServiceError(c, err)
	}
	return writeCreated(c, dm.ID, repliesLocation(dm.ID))
}

func (h *MessageHandler) ListReplies(c echo.Context) error {
	replies, err := h.svc.ListReplies(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	resp := make([]MessageResponse, 0, len(replies))
	for _, r := range replies {
		resp = append(resp, toReplyResponse(r))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) Reply(c echo.Context) error {
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest)
	}
	reply, err := h.svc.ReplyTo(c.Request().Context(), c.Param("id"), req.Reply)
	if err != nil {
		return writeServiceError(c, err)
	}
	return writeCreated(c, reply.ID, repliesLocation(reply.ID))
}

// repliesLocation is where the thread under a new message can be read back.
func repliesLocation(id string) string {
	return "/dms/" + id + "/replies"
}

func toDMResponse(dm *model.DirectMessage) MessageResponse {
	return MessageResponse{
		ID:           dm.ID,
		Timestamp:    dm.Timestamp,
		Kind:         dm.Kind(),
		To:           dm.To,
		From:         dm.From,
		Body:         dm.Body,
		QuickReplies: dm.QuickReplies,
	}
}

func toReplyResponse(r *model.Reply) MessageResponse {
	return MessageResponse{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Kind:      r.Kind(),
		To:        r.To,
		From:      r.From,
		Body:      r.Body,
		ParentID:  r.ParentID,
	}
}
