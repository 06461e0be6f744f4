package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx returns the logger carried by ctx, or the global one.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithStr returns a context whose logger carries an extra string field.
func WithStr(ctx context.Context, key, value string) context.Context {
	l := Ctx(ctx)
	return WithLogger(ctx, l.With().Str(key, value).Logger())
}

// WithBroadcast tags every line logged through ctx with the broadcast id.
func WithBroadcast(ctx context.Context, broadcastID string) context.Context {
	return WithStr(ctx, FieldBroadcastID, broadcastID)
}

// WithConn returns a context for the lifetime of one chat socket. It is not
// derived from the upgrade request, which ends while the socket lives on.
func WithConn(userID, connID string) context.Context {
	l := L().With().Str(FieldUserID, userID).Str(FieldConnID, connID).Logger()
	return WithLogger(context.Background(), l)
}
