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

// RegisterDeviceToken stores the caller's push token.
func (h *Handler) RegisterDeviceToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.DeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind device token request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.users.RegisterDeviceToken(ctx, middleware.GetUserID(c), req.Token); err != nil {
		writeUserError(c, err, "failed to register device token")
		return
	}

	response.Success(c, gin.H{"registered": true})
}

// ClearDeviceToken removes the caller's push token, e.g. on logout.
func (h *Handler) ClearDeviceToken(c *gin.Context) {
	if err := h.users.ClearDeviceToken(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		writeUserError(c, err, "failed to clear device token")
		return
	}

	response.Success(c, gin.H{"registered": false})
}

func (h *Handler) BlockUser(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.users.Block(ctx, middleware.GetUserID(c), c.Param("id")); err != nil {
		writeUserError(c, err, "failed to block user")
		return
	}

	response.Success(c, gin.H{"blocked": true})
}

func (h *Handler) UnblockUser(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.users.Unblock(ctx, middleware.GetUserID(c), c.Param("id")); err != nil {
		writeUserError(c, err, "failed to unblock user")
		return
	}

	response.Success(c, gin.H{"blocked": false})
}

// ListBlocked returns the users the caller has blocked.
func (h *Handler) ListBlocked(c *gin.Context) {
	ctx := c.Request.Context()

	ids, err := h.users.ListBlocked(ctx, middleware.GetUserID(c))
	if err != nil {
		writeUserError(c, err, "failed to list blocked users")
		return
	}

	response.Success(c, domain.BlockedUsersResponse{BlockedIDs: ids})
}

// ListNotifications returns the caller's notification history.
func (h *Handler) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, pageSize := pageParams(req.Page, req.PageSize)

	items, total, err := h.notifications.List(ctx, middleware.GetUserID(c), page, pageSize)
	if err != nil {
		l.Error().Err(err).Msg("failed to list notifications")
		response.InternalError(c, "failed to list notifications")
		return
	}

	response.Paginated(c, items, total, page, pageSize)
}

func writeUserError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidUserInput), errors.Is(err, service.ErrCannotBlockSelf):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, service.ErrNotBlocked):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrAlreadyBlocked):
		response.Conflict(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}
