package api

import (
	"context"

	"github.com/valyala/fasthttp"

	"convodb/pkg/api/auth"
	"convodb/pkg/api/router"
	"convodb/pkg/models"
)

type conversationRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type participantRequest struct {
	UserID string `json:"userId"`
}

type messageRequest struct {
	Body        string `json:"body"`
	MessageType string `json:"messageType"`
}

func (h *handlers) registerUser(ctx *fasthttp.RequestCtx) {
	var u models.User
	if !payload(ctx, &u) {
		return
	}
	created, err := h.Ingest.RegisterUser(h.context(), u)
	if err != nil {
		writeError(ctx, err)
		return
	}
	status := fasthttp.StatusOK
	if created {
		status = fasthttp.StatusCreated
	}
	router.WriteJSON(ctx, status, map[string]any{"id": u.ID, "created": created})
}

func (h *handlers) createConversation(ctx *fasthttp.RequestCtx) {
	var req conversationRequest
	if !payload(ctx, &req) {
		return
	}
	conv, err := h.Ingest.CreateConversation(h.context(), auth.UserID(ctx), req.Name, req.Members)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusCreated, conv)
}

func (h *handlers) addParticipant(ctx *fasthttp.RequestCtx) {
	conv, ok := param(ctx, "id")
	if !ok {
		return
	}
	var req participantRequest
	if !payload(ctx, &req) {
		return
	}
	added, err := h.Ingest.AddParticipant(h.context(), auth.UserID(ctx), conv, req.UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"added": added})
}

func (h *handlers) leaveConversation(ctx *fasthttp.RequestCtx) {
	conv, ok := param(ctx, "id")
	if !ok {
		return
	}
	if err := h.Ingest.LeaveConversation(h.context(), auth.UserID(ctx), conv); err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"left": true})
}

func (h *handlers) sendMessage(ctx *fasthttp.RequestCtx) {
	conv, ok := param(ctx, "id")
	if !ok {
		return
	}
	var req messageRequest
	if !payload(ctx, &req) {
		return
	}
	m, err := h.Ingest.SendMessage(h.context(), auth.UserID(ctx), conv, req.Body, req.MessageType)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusCreated, m)
}

func (h *handlers) like(ctx *fasthttp.RequestCtx) {
	h.messageOp(ctx, "changed", h.Ingest.Like)
}

func (h *handlers) unlike(ctx *fasthttp.RequestCtx) {
	h.messageOp(ctx, "changed", h.Ingest.Unlike)
}

func (h *handlers) toggleLike(ctx *fasthttp.RequestCtx) {
	h.messageOp(ctx, "liked", h.Ingest.ToggleLike)
}

func (h *handlers) hideMessage(ctx *fasthttp.RequestCtx) {
	h.messageOp(ctx, "changed", h.Ingest.HideMessage)
}

func (h *handlers) messageOp(ctx *fasthttp.RequestCtx, field string, op func(context.Context, string, string) (bool, error)) {
	id, ok := param(ctx, "id")
	if !ok {
		return
	}
	v, err := op(h.context(), auth.UserID(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{field: v})
}
