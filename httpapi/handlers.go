// Package httpapi exposes the messaging core over REST. It is the
// conventional glue the core treats as an external caller: bind, delegate
// to the service, map the error class.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"salon-chat/domain"
	"salon-chat/domain/search"
	errs "salon-chat/errors"
	"salon-chat/observability"
	"salon-chat/repositories"
	"salon-chat/services"
)

type Handler struct {
	svc     services.IMessageService
	link    repositories.IConversationLink
	monitor *observability.Monitor
	log     *slog.Logger
	timeout time.Duration
}

func NewHandler(
	svc services.IMessageService,
	link repositories.IConversationLink,
	monitor *observability.Monitor,
	log *slog.Logger,
	timeout time.Duration,
) *Handler {
	return &Handler{svc: svc, link: link, monitor: monitor, log: log, timeout: timeout}
}

type sendRequest struct {
	Content string  `json:"content" binding:"required"`
	ReplyTo *string `json:"replyTo"`
}

type editRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var replyTo *uuid.UUID
	if req.ReplyTo != nil {
		id, err := uuid.Parse(*req.ReplyTo)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "replyTo must be a valid message id"})
			return
		}
		replyTo = &id
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	message, err := h.svc.Send(ctx, domain.SendCommand{
		Sender:  c.GetString(actorKey),
		Chat:    c.Param("chatID"),
		Content: req.Content,
		ReplyTo: replyTo,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageResponse(message))
}

func (h *Handler) listMessages(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()

	views, err := h.svc.ListForChat(ctx, c.Param("chatID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(views, func(v domain.MessageView, _ int) messageResponse {
		return toMessageViewResponse(v)
	}))
}

func (h *Handler) editMessage(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, ok := h.messageID(c)
	if !ok {
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	message, err := h.svc.Edit(ctx, id, c.GetString(actorKey), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageResponse(message))
}

func (h *Handler) deleteMessage(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	message, err := h.svc.Delete(ctx, id, c.GetString(actorKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageResponse(message))
}

func (h *Handler) markRead(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	message, err := h.svc.MarkRead(ctx, id, c.GetString(actorKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageResponse(message))
}

func (h *Handler) togglePin(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	message, err := h.svc.TogglePin(ctx, id, c.GetString(actorKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageResponse(message))
}

func (h *Handler) searchMessages(c *gin.Context) {
	query := search.Query{
		Term: c.Query("term"),
		Chat: c.Query("chat"),
	}
	if pinned, found := c.GetQuery("pinned"); found {
		query.IsPinned = lo.ToPtr(pinned == "true")
	}
	for param, target := range map[string]**time.Time{"from": &query.From, "to": &query.To} {
		if raw, found := c.GetQuery(param); found {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be RFC3339"})
				return
			}
			*target = &parsed
		}
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	messages, err := h.svc.Search(ctx, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m)
	}))
}

func (h *Handler) unseenCount(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()

	count, err := h.svc.UnseenCount(ctx, c.Param("chatID"), c.GetString(actorKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) latestMessage(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()

	summary, err := h.link.LatestMessage(ctx, c.Param("chatID"))
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no messages in this conversation"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        summary.ID.String(),
		"sender":    summary.Sender,
		"content":   summary.Content,
		"createdAt": summary.CreatedAt,
	})
}

func (h *Handler) debugStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

func (h *Handler) messageID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("messageID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return uuid.Nil, false
	}
	return id, true
}
