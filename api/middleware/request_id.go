package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID honors an inbound request id or mints one, echoes it on the
// response, and attaches it to the context logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if reqID == "" || len(reqID) > 64 {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
