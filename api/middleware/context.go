package middleware

import "context"

// actor is the authenticated caller as seen by handlers.
type actor struct {
	userID string
	role   string
}

type actorKey struct{}

func actorFrom(ctx context.Context) actor {
	if ctx == nil {
		return actor{}
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a
}

func withActor(ctx context.Context, a actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, a)
}

func UserIDFromContext(ctx context.Context) string { return actorFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return actorFrom(ctx).role }

func WithUserID(ctx context.Context, userID string) context.Context {
	a := actorFrom(ctx)
	a.userID = userID
	return withActor(ctx, a)
}

func WithRole(ctx context.Context, role string) context.Context {
	a := actorFrom(ctx)
	a.role = role
	return withActor(ctx, a)
}
