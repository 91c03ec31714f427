package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kpetrov-dev/bookstore-api/internal/auth"
)

func TestMiddleware(t *testing.T) {
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))

	tests := []struct {
		name           string
		userIDHeader   string
		roleHeader     string
		wantIdentity   bool
		wantPrivileged bool
	}{
		{
			name:         "no_headers",
			wantIdentity: false,
		},
		{
			name:         "malformed_user_id",
			userIDHeader: "not-a-uuid",
			wantIdentity: false,
		},
		{
			name:         "regular_user",
			userIDHeader: userID.String(),
			wantIdentity: true,
		},
		{
			name:           "admin_user",
			userIDHeader:   userID.String(),
			roleHeader:     "admin",
			wantIdentity:   true,
			wantPrivileged: true,
		},
		{
			name:         "unknown_role_is_not_privileged",
			userIDHeader: userID.String(),
			roleHeader:   "support",
			wantIdentity: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotIdent auth.Identity
			var gotOK bool

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotIdent, gotOK = auth.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.userIDHeader != "" {
				req.Header.Set("X-User-ID", tt.userIDHeader)
			}
			if tt.roleHeader != "" {
				req.Header.Set("X-User-Role", tt.roleHeader)
			}
			w := httptest.NewRecorder()

			auth.Middleware(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantIdentity, gotOK)
			if tt.wantIdentity {
				assert.Equal(t, userID, gotIdent.UserID)
				assert.Equal(t, tt.wantPrivileged, gotIdent.Privileged)
			}
		})
	}
}
