package hub

import (
	"context"
	"net/http"
	"strings"

	"github.com/clutchride/hub/auth"
)

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// authenticate attaches the caller's claims to the request context when it carries a bearer token.
// Requests without a token pass through unauthenticated, and requests with a bad token are rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, "unsupported authorization scheme", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			s.logger.Debugw("rejected bearer token", "Error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}
