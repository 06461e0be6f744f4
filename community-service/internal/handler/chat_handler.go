package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/service"
	"github.com/chys-app/chys-live/pkg/log"
	"github.com/chys-app/chys-live/pkg/middleware"
	"github.com/chys-app/chys-live/pkg/response"
)

// ListConversations returns one entry per peer with the latest message.
func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	convs, err := h.chat.Conversations(ctx, middleware.GetUserID(c))
	if err != nil {
		l.Error().Err(err).Msg("failed to list conversations")
		response.InternalError(c, "failed to list conversations")
		return
	}

	response.Success(c, convs)
}

// ListMessages returns the history with one peer, oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, pageSize := pageParams(req.Page, req.PageSize)

	msgs, total, err := h.chat.History(ctx, middleware.GetUserID(c), c.Param("peerId"), page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			response.BadRequest(c, "peerId is required")
			return
		}
		l.Error().Err(err).Msg("failed to list messages")
		response.InternalError(c, "failed to list messages")
		return
	}

	response.Paginated(c, msgs, total, page, pageSize)
}
