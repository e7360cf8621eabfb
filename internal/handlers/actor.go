package handlers

import (
	"net/http"
	"strings"

	"github.com/tolkfield/api/internal/platform/httpx"
	"github.com/tolkfield/api/internal/platform/requestctx"
	"github.com/tolkfield/api/internal/services"
)

// Gateway headers carrying the authenticated caller. Authentication itself
// happens upstream; this API trusts the gateway-resolved identity.
const (
	headerActorID   = "X-User-Id"
	headerActorRole = "X-User-Role"
)

// ActorFromHeaders lifts the gateway identity headers onto the request
// context so handlers and services can attribute the call.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerActorID))
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(headerActorRole)))
		if id != "" {
			ctx := requestctx.WithActor(r.Context(), requestctx.ActorInfo{ID: id, Role: role})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// requireActor resolves the caller or writes a 401 and reports false.
func requireActor(w http.ResponseWriter, r *http.Request) (services.ActorRef, bool) {
	actor, ok := requestctx.Actor(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.ActorRef{}, false
	}
	return services.ActorRef{ID: actor.ID, Role: actor.Role}, true
}

// requireAdmin resolves the caller and rejects non-admin roles.
func requireAdmin(w http.ResponseWriter, r *http.Request) (services.ActorRef, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return services.ActorRef{}, false
	}
	if actor.Role != services.RoleAdmin {
		httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return services.ActorRef{}, false
	}
	return actor, true
}
