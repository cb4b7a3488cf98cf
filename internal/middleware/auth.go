package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hongminglow/userhub/internal/http/respond"
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Subject(raw string) (string, error)
}

type subjectKey struct{}

// SubjectFrom returns the authenticated user id stored by RequireOwner.
func SubjectFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(subjectKey{}).(uuid.UUID)
	return id, ok
}

// RequireOwner admits a request only when its bearer token belongs to the
// user named by the {param} path value. A missing or invalid token gets 401,
// a valid token for another user gets 403. A path value that is not a user id
// is left for the handler to reject.
func RequireOwner(tokens TokenVerifier, param string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok || tokens == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="userhub"`)
				respond.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			subject, err := verify(tokens, raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="userhub", error="invalid_token"`)
				respond.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if target, err := uuid.Parse(r.PathValue(param)); err == nil && target != subject {
				respond.Error(w, http.StatusForbidden, "token does not belong to this user")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
		})
	}
}

func verify(tokens TokenVerifier, raw string) (uuid.UUID, error) {
	sub, err := tokens.Subject(raw)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
