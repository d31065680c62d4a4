// Package actorctx carries the identity of the browser a request belongs to
// through context, so layers below HTTP (the API client's 401 hook, the
// session store) can act on the right client.
package actorctx

import "context"

type ctxKey string

const (
	keyClientID ctxKey = "client_id"
	keyUserID   ctxKey = "user_id"
)

func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, keyClientID, clientID)
}

func ClientIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyClientID).(string)

	return v, ok && v != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)

	return v, ok && v != ""
}
