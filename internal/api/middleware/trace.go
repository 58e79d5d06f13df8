package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	apiContext "toollink/internal/api/context"
)

const traceHeader = "X-Trace-Id"

// Trace assigns every request a correlation id, echoed in the response
// header and attached to error bodies and audit entries.
func Trace(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)

		ctx := context.WithValue(r.Context(), apiContext.TraceID, traceID)
		next(w, r.WithContext(ctx))
	}
}

// TraceID extracts the correlation id placed by Trace.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(apiContext.TraceID).(string); ok {
		return id
	}
	return ""
}
