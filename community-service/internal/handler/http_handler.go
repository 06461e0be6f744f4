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

// Handler handles HTTP requests for the community service.
type Handler struct {
	broadcasts     service.BroadcastService
	users          service.UserService
	notifications  service.NotificationService
	chat           service.ChatService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	broadcasts service.BroadcastService,
	users service.UserService,
	notifications service.NotificationService,
	chat service.ChatService,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		broadcasts:     broadcasts,
		users:          users,
		notifications:  notifications,
		chat:           chat,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware.RequireAuth())
	{
		broadcasts := api.Group("/broadcast")
		{
			broadcasts.POST("", h.CreateBroadcast)
			broadcasts.GET("", h.ListMyBroadcasts)
			broadcasts.GET("/:id", h.GetBroadcast)
			broadcasts.GET("/:id/token", h.RequestJoinToken)
			broadcasts.POST("/:id/end", h.EndBroadcast)
			broadcasts.POST("/:id/fund", h.FundBroadcast)
			broadcasts.GET("/:id/funds", h.ListFunds)
		}

		api.GET("/notifications", h.ListNotifications)

		users := api.Group("/users")
		{
			users.PUT("/me/device-token", h.RegisterDeviceToken)
			users.DELETE("/me/device-token", h.ClearDeviceToken)
			users.GET("/me/blocked", h.ListBlocked)
			users.POST("/:id/block", h.BlockUser)
			users.DELETE("/:id/block", h.UnblockUser)
		}

		chat := api.Group("/chat")
		{
			chat.GET("/conversations", h.ListConversations)
			chat.GET("/:peerId/messages", h.ListMessages)
		}
	}
}

// CreateBroadcast schedules a broadcast hosted by the caller.
func (h *Handler) CreateBroadcast(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create broadcast request")
		response.BadRequest(c, err.Error())
		return
	}

	b, err := h.broadcasts.Create(ctx, middleware.GetUserID(c), middleware.GetUsername(c), &req)
	if err != nil {
		h.writeBroadcastError(c, err, "failed to create broadcast")
		return
	}

	response.Created(c, b)
}

// ListMyBroadcasts lists the broadcasts the caller hosts or is invited to.
func (h *Handler) ListMyBroadcasts(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	result, err := h.broadcasts.ListForUser(ctx, middleware.GetUserID(c))
	if err != nil {
		l.Error().Err(err).Msg("failed to list broadcasts")
		response.InternalError(c, "failed to list broadcasts")
		return
	}

	response.Success(c, result)
}

// GetBroadcast retrieves a broadcast by ID.
func (h *Handler) GetBroadcast(c *gin.Context) {
	ctx := log.WithBroadcast(c.Request.Context(), c.Param("id"))

	b, err := h.broadcasts.Get(ctx, c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.writeBroadcastError(c, err, "failed to get broadcast")
		return
	}

	response.Success(c, b)
}

// RequestJoinToken issues a channel token. The host's first request takes the
// broadcast live.
func (h *Handler) RequestJoinToken(c *gin.Context) {
	ctx := log.WithBroadcast(c.Request.Context(), c.Param("id"))

	tok, err := h.broadcasts.RequestJoinToken(ctx, c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.writeBroadcastError(c, err, "failed to issue join token")
		return
	}

	response.Success(c, tok)
}

// EndBroadcast stops the recording and ends the broadcast.
func (h *Handler) EndBroadcast(c *gin.Context) {
	ctx := log.WithBroadcast(c.Request.Context(), c.Param("id"))

	result, err := h.broadcasts.End(ctx, c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.writeBroadcastError(c, err, "failed to end broadcast")
		return
	}

	response.Success(c, result)
}

func (h *Handler) FundBroadcast(c *gin.Context) {
	ctx := log.WithBroadcast(c.Request.Context(), c.Param("id"))
	l := log.Ctx(ctx)

	var req domain.FundBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind fund request")
		response.BadRequest(c, err.Error())
		return
	}

	fund, err := h.broadcasts.Fund(ctx, c.Param("id"), middleware.GetUserID(c), &req)
	if err != nil {
		h.writeBroadcastError(c, err, "failed to fund broadcast")
		return
	}

	response.Created(c, fund)
}

func (h *Handler) ListFunds(c *gin.Context) {
	ctx := log.WithBroadcast(c.Request.Context(), c.Param("id"))

	funds, err := h.broadcasts.ListFunds(ctx, c.Param("id"))
	if err != nil {
		h.writeBroadcastError(c, err, "failed to list funds")
		return
	}

	response.Success(c, funds)
}

func (h *Handler) writeBroadcastError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrInvalidBroadcast), errors.Is(err, service.ErrInvalidAmount):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrBroadcastNotFound):
		response.NotFound(c, "broadcast not found")
	case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrNotHost):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrBroadcastEnded):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrExternalService):
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.ExternalServiceError(c, "recording service unavailable, try again")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}

// pageParams clamps page and pageSize the same way for every list endpoint.
func pageParams(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
