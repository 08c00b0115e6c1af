package auth

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// ReviewerKey holds the resolved reviewer name.
	ReviewerKey contextKey = "reviewer"
	// ClientIPKey holds the client IP address.
	ClientIPKey contextKey = "client_ip"
)

// ReviewerMiddleware only lets requests from known reviewer IPs through.
type ReviewerMiddleware struct {
	resolver     *ReviewerResolver
	unauthorized func(w http.ResponseWriter, ip string)
}

// NewReviewerMiddleware wraps resolver. unauthorized renders the refusal;
// nil falls back to a plain 403.
func NewReviewerMiddleware(resolver *ReviewerResolver, unauthorized func(w http.ResponseWriter, ip string)) *ReviewerMiddleware {
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, ip string) {
			http.Error(w, "reviewer not recognised for "+ip, http.StatusForbidden)
		}
	}
	return &ReviewerMiddleware{resolver: resolver, unauthorized: unauthorized}
}

func (m *ReviewerMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)
		if !m.resolver.IsLoaded() {
			m.unauthorized(w, clientIP)
			return
		}
		reviewer, found := m.resolver.Reviewer(r)
		if !found {
			m.unauthorized(w, clientIP)
			return
		}

		ctx := context.WithValue(r.Context(), ReviewerKey, reviewer)
		ctx = context.WithValue(ctx, ClientIPKey, clientIP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ReviewerFromContext returns the reviewer set by the middleware.
func ReviewerFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ReviewerKey).(string)
	return name, ok
}

func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ClientIPKey).(string)
	return ip, ok
}
