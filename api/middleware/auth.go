package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/api/responses"
	pkgauth "github.com/nclamvn/prismy-production-sub017/pkg/auth"
	"github.com/nclamvn/prismy-production-sub017/pkg/config"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

// SessionIDHeader carries an anonymous session id for callers without an
// account. The value must be a UUID minted by the frontend.
const SessionIDHeader = "X-Session-ID"

// Auth resolves the caller's identity and seeds the request context with it:
// a bearer token when present, otherwise an anonymous session id header.
func Auth(cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				sessionID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(SessionIDHeader)))
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
					return
				}

				ctx := WithUserID(r.Context(), sessionID.String())
				if logg != nil {
					ctx = logg.WithUserID(ctx, sessionID.String())
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID.String())
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
