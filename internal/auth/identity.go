package auth

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Identity is what the upstream identity layer yields for a request.
type Identity struct {
	UserID     uuid.UUID
	Privileged bool
}

type ctxKey struct{}

const (
	userIDHeader = "X-User-ID"
	roleHeader   = "X-User-Role"

	roleAdmin = "admin"
)

// Middleware extracts the caller identity from gateway-verified headers and
// stores it in the request context. Requests without a valid identity pass
// through unauthenticated; handlers decide whether that is acceptable.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(userIDHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := uuid.FromString(raw)
		if err != nil {
			log.Warn().Err(err).Str("user_id", raw).Msg("auth: malformed user id header")
			next.ServeHTTP(w, r)
			return
		}

		ident := Identity{
			UserID:     userID,
			Privileged: r.Header.Get(roleHeader) == roleAdmin,
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}

func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, ident)
}

func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(ctxKey{}).(Identity)
	return ident, ok
}
