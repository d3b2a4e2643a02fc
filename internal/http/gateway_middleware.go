package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type actorContextKey string

const contextKeyGateway actorContextKey = "spectcast-gateway-actor"

type contextSetter interface {
	SetContext(context.Context)
}

// requireGateway gates trusted-caller routes behind the shared gateway token
// before invoking the handler.
func (r *Router) requireGateway(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.verifyGatewayToken(w, req) {
			return
		}
		ctx := context.WithValue(req.Context(), contextKeyGateway, true)
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// verifyGatewayToken ensures gateway calls include the configured secret.
func (r *Router) verifyGatewayToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.gatewayToken
	if expected == "" {
		r.logger.Error("gateway token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "gateway authentication misconfigured")
		return false
	}
	token := strings.TrimSpace(req.Header.Get("X-Gateway-Token"))
	if token == "" {
		token = strings.TrimSpace(req.URL.Query().Get("gateway_token"))
	}
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("gateway token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid gateway token")
		return false
	}
	return true
}

// gatewayActorFromContext reports whether the request authenticated as the
// realtime gateway.
func gatewayActorFromContext(ctx context.Context) bool {
	value, ok := ctx.Value(contextKeyGateway).(bool)
	return ok && value
}
