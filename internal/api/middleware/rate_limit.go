package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"toollink/internal/engine/ratelimit"
	"toollink/internal/pkg/errors"
)

// RateLimit gates grouped endpoints through the sliding-window limiter.
// Authenticated callers are keyed by user id, anonymous ones by remote
// IP, so one noisy client cannot starve the rest.
type RateLimitMiddleware struct {
	limiter    *ratelimit.Limiter
	trustProxy bool
}

// trustProxy keys anonymous callers by X-Forwarded-For. Leave it off
// unless a proxy in front of the server overwrites that header, since
// a direct client can set it to anything.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, trustProxy bool) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, trustProxy: trustProxy}
}

func (m *RateLimitMiddleware) Handle(class string, limit int, window time.Duration) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := class + ":"
			if id := CallerIdentity(r.Context()); id != nil {
				key += id.UserID
			} else {
				key += m.remoteIP(r)
			}

			decision := m.limiter.Admit(key, limit, window)
			if !decision.Allowed {
				errors.WriteError(w, TraceID(r.Context()), &errors.Error{
					Code:       errors.CodeRateLimited,
					Message:    fmt.Sprintf("rate limit exceeded for %s", class),
					HTTPStatus: http.StatusTooManyRequests,
					RetryAfter: int(decision.RetryAfter.Seconds()),
				})
				return
			}

			next(w, r)
		}
	}
}

func (m *RateLimitMiddleware) remoteIP(r *http.Request) string {
	if m.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			return strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
