package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/fixitnow/bookings/internal/http/response"
	"github.com/fixitnow/bookings/internal/identity"
	"github.com/fixitnow/bookings/pkg/logger"
)

type ctxKey string

const ctxActor ctxKey = "actor"

// RequireActor verifies the bearer token through the identity
// collaborator and stores the resulting actor in the request context.
func RequireActor(verifier identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "missing bearer token")
				return
			}

			actor, err := verifier.VerifyActor(strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				response.Unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxActor, actor)
			ctx = context.WithValue(ctx, logger.ActorIDKey, actor.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor returns the verified actor stored by RequireActor, or nil.
func Actor(r *http.Request) *identity.Actor {
	v := r.Context().Value(ctxActor)
	if v == nil {
		return nil
	}
	return v.(*identity.Actor)
}
