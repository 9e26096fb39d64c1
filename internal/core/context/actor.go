// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// ActorContext identifies the authenticated actor behind a request.
// Authentication itself is an external collaborator; handlers only need
// the identity for audit fields (rate updatedBy, sync initiator).
type ActorContext struct {
	ActorID string
	Email   string
	Name    string
}

type actorContextKey struct{}

// WithActor adds ActorContext to context.
func WithActor(ctx context.Context, actor *ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns ActorContext from context.
func GetActor(ctx context.Context) *ActorContext {
	if v, ok := ctx.Value(actorContextKey{}).(*ActorContext); ok {
		return v
	}
	return nil
}

// GetActorID returns actor ID from context or empty string.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.ActorID
	}
	return ""
}
