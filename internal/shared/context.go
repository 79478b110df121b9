package shared

import "context"

// Actor is the opaque identity acting on a document: a user id, its role and
// the permissions resolved for it.
type Actor struct {
	ID          int64
	Role        string
	Permissions []string
}

// SystemActor returns an actor holding every permission in perms, used by
// integration callers that act on behalf of the system user.
func SystemActor(id int64, perms ...string) Actor {
	return Actor{ID: id, Role: "system", Permissions: perms}
}

// Can reports whether the actor holds perm.
func (a Actor) Can(perm string) bool {
	if perm == "" {
		return true
	}
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
