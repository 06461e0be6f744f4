package audit

import (
	"context"

	"github.com/chys-app/chys-live/pkg/log"
)

const (
	ActionBroadcastCreate = "broadcast.create"
	ActionBroadcastLive   = "broadcast.live"
	ActionBroadcastEnd    = "broadcast.end"
	ActionBroadcastFund   = "broadcast.fund"
	ActionJoinToken       = "broadcast.join_token"
	ActionBlock           = "user.block"
	ActionUnblock         = "user.unblock"
	ActionDeviceToken     = "user.device_token"
	ActionChatConnect     = "chat.connect"
	ActionChatDisconnect  = "chat.disconnect"
	ActionChatRejected    = "chat.rejected"
)

const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit entry through the context logger.
func Log(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
	if targetID != "" {
		evt = evt.Str(FieldTargetID, targetID)
	}
	evt.Msg(msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action, userID, targetID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Str(FieldDetail, detail).
		Msg(msg)
}
