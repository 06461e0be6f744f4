package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chys-app/chys-live/community-service/internal/audit"
	"github.com/chys-app/chys-live/community-service/internal/config"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/hub"
	"github.com/chys-app/chys-live/community-service/internal/presence"
	"github.com/chys-app/chys-live/community-service/internal/service"
	"github.com/chys-app/chys-live/pkg/log"
	"github.com/chys-app/chys-live/pkg/middleware"
	"github.com/chys-app/chys-live/pkg/response"
)

const messageTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// socket is the part of a chat connection the message dispatcher needs.
type socket interface {
	ID() string
	UserID() string
	Allow() bool
	Send(v interface{}) bool
}

type WSHandler struct {
	registry *presence.Registry
	chat     service.ChatService
	users    service.UserService
	auth     *middleware.AuthMiddleware
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(
	registry *presence.Registry,
	chat service.ChatService,
	users service.UserService,
	auth *middleware.AuthMiddleware,
	wsCfg config.WebSocketConfig,
) *WSHandler {
	return &WSHandler{
		registry: registry,
		chat:     chat,
		users:    users,
		auth:     auth,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the upgrade request and registers the socket
// as the user's current chat connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	claims, err := h.auth.Authenticate(c.Request)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}
	if _, err := h.users.Ensure(ctx, claims.UserID, claims.Username); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to load chat user")
		response.InternalError(c, "failed to open chat")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), claims.UserID, conn, h.wsCfg)
	connCtx := log.WithConn(claims.UserID, client.ID())

	if prev, replaced := h.registry.Register(claims.UserID, client); replaced {
		cl := log.Ctx(connCtx)
		cl.Info().Str("previous_conn_id", prev.ID()).Msg("chat connection replaced")
	}
	audit.Log(connCtx, audit.ActionChatConnect, claims.UserID, "", "chat connected")

	go client.WritePump()
	go client.ReadPump(
		func(cl *hub.Client, data []byte) { h.handleMessage(connCtx, cl, data) },
		func(cl *hub.Client) { h.onClose(connCtx, cl) },
	)
}

func (h *WSHandler) onClose(ctx context.Context, client *hub.Client) {
	if h.registry.UnregisterConn(client.UserID(), client) {
		audit.Log(ctx, audit.ActionChatDisconnect, client.UserID(), "", "chat disconnected")
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, client socket, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format", err.Error()))
		return
	}

	switch base.Type {
	case domain.MsgTypePrivateMessage:
		if !client.Allow() {
			client.Send(domain.NewErrorMessage(domain.ErrCodeRateLimited, "Too many messages", "slow down"))
			return
		}
		var msg domain.PrivateMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid private_message", err.Error()))
			return
		}
		h.sendPrivateMessage(ctx, client, &msg)

	case domain.MsgTypePing:
		client.Send(domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type", base.Type))
	}
}

func (h *WSHandler) sendPrivateMessage(ctx context.Context, client socket, msg *domain.PrivateMessageIn) {
	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	_, err := h.chat.SendPrivateMessage(ctx, client.UserID(), msg)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidMessage):
		client.Send(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Message not sent", err.Error()))
	case errors.Is(err, service.ErrBlocked):
		client.Send(domain.NewErrorMessage(domain.ErrCodeForbidden, "Message not sent", err.Error()))
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to send private message")
		client.Send(domain.NewErrorMessage(domain.ErrCodeInternalError, "Message not sent", "internal error"))
	}
}
