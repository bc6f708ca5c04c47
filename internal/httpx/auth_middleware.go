package httpx

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Authenticator is satisfied by auth.Service.
type Authenticator interface {
	Authenticate(accessToken string) (access.Identity, error)
}

// RequireAuth rejects requests without a valid access token and puts the
// caller identity and request id on the context.
func RequireAuth(a Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := bearerToken(r)
			if err != nil {
				writeError(w, log, err)
				return
			}
			who, err := a.Authenticate(tok)
			if err != nil {
				writeError(w, log, err)
				return
			}
			ctx := access.WithIdentity(r.Context(), who)
			ctx = orders.WithTraceID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
	}
	return strings.TrimSpace(tok), nil
}

func identity(r *http.Request) access.Identity {
	who, _ := access.FromContext(r.Context())
	return who
}
