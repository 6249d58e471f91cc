package app

import (
	"context"
	"strings"
)

// DefaultActorID attributes mutations made without an explicit actor.
const DefaultActorID = "tempo-user"

// MutationActor carries normalized caller identity metadata for mutation attribution.
type MutationActor struct {
	ActorID string
}

// WithMutationActor attaches normalized mutation-actor identity metadata to context.
func WithMutationActor(ctx context.Context, actor MutationActor) context.Context {
	actor = normalizeMutationActor(actor)
	return context.WithValue(ctx, mutationActorContextKey{}, actor)
}

// MutationActorFromContext returns normalized mutation-actor metadata when present.
func MutationActorFromContext(ctx context.Context) (MutationActor, bool) {
	raw := ctx.Value(mutationActorContextKey{})
	actor, ok := raw.(MutationActor)
	if !ok {
		return MutationActor{}, false
	}
	actor = normalizeMutationActor(actor)
	if actor.ActorID == "" {
		return MutationActor{}, false
	}
	return actor, true
}

// ActorID returns the context's actor id or DefaultActorID.
func ActorID(ctx context.Context) string {
	if actor, ok := MutationActorFromContext(ctx); ok {
		return actor.ActorID
	}
	return DefaultActorID
}

// mutationActorContextKey stores context keys for mutation actor metadata.
type mutationActorContextKey struct{}

// normalizeMutationActor trims mutation actor metadata.
func normalizeMutationActor(actor MutationActor) MutationActor {
	actor.ActorID = strings.TrimSpace(actor.ActorID)
	return actor
}
