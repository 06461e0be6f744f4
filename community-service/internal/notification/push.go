package notification

import (
	"context"

	"github.com/chys-app/chys-live/pkg/log"
)

// PushMessage is one device-addressed push.
type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// PushSender delivers a single push message. Errors are per message.
type PushSender interface {
	Send(ctx context.Context, msg *PushMessage) error
}

// LogSender only logs pushes; used when no push provider is configured.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(ctx context.Context, msg *PushMessage) error {
	l := log.Ctx(ctx)
	l.Debug().
		Str("title", msg.Title).
		Str(log.FieldCategory, msg.Data["type"]).
		Msg("push skipped, log sender")
	return nil
}

var _ PushSender = (*LogSender)(nil)
