package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spectcast/identity/internal/service/account"
	"github.com/spectcast/identity/internal/service/auth"
	"github.com/spectcast/identity/internal/service/events"
	"github.com/spectcast/identity/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	accounts     account.Service
	auth         auth.Service
	events       events.Service
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	gatewayToken string
	storeHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitAnonymous = 12
	rateLimitRegister  = 10
	rateLimitUpdate    = 30
	rateLimitBatch     = 120
	rateLimitGateway   = 600
	rateLimitStream    = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeatEvery  = 25 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, accountSvc account.Service, authSvc auth.Service, eventSvc events.Service, limiter RateLimiter, gatewayToken string, storeHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		accounts: accountSvc,
		auth:     authSvc,
		events:   eventSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      limiter,
		gatewayToken: strings.TrimSpace(gatewayToken),
		storeHealth:  storeHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/v1/accounts/anonymous", r.audit(r.withRateLimit("anonymous", rateLimitAnonymous, rateWindowDefault, rateLimitKeyIP, r.handleAnonymous)))
	r.mux.HandleFunc("/v1/accounts/register", r.audit(r.withRateLimit("register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/v1/accounts/update", r.audit(r.withRateLimit("update", rateLimitUpdate, rateWindowDefault, rateLimitKeyIP, r.handleUpdate)))
	r.mux.HandleFunc("/v1/accounts/batch", r.audit(r.withRateLimit("batch", rateLimitBatch, rateWindowDefault, rateLimitKeyIP, r.handleBatch)))
	r.mux.HandleFunc("/v1/auth/handshake", r.audit(r.handlerGatewayRate("handshake", rateLimitGateway, rateWindowDefault, r.handleHandshake)))
	r.mux.HandleFunc("/v1/auth/login", r.audit(r.handlerGatewayRate("login", rateLimitGateway, rateWindowDefault, r.handleLogin)))
	r.mux.HandleFunc("/v1/ws/accounts", r.audit(r.handlerGatewayRate("ws_accounts", rateLimitStream, rateWindowRealtime, r.handleAccountsWS)))
	r.mux.HandleFunc("/v1/events/accounts", r.audit(r.handlerGatewayRate("sse_accounts", rateLimitStream, rateWindowRealtime, r.handleAccountsSSE)))
}

func (r *Router) handleAnonymous(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, account.NewError(account.CodeValidation, err))
		return
	}
	if violations := anonymousSchema.check(map[string]string{"name": payload.Name}); len(violations) > 0 {
		r.logger.Warn("anonymous request rejected", "violations", violations)
		writeFailure(w, account.NewError(account.CodeValidation, errors.New(strings.Join(violations, "; "))))
		return
	}
	acc, err := r.accounts.CreateAnonymous(req.Context(), payload.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, map[string]any{"account": acc})
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username      string `json:"username"`
		Name          string `json:"name"`
		Temporary     *bool  `json:"temporary"`
		Linked        string `json:"linked"`
		LinkedSecret  string `json:"linkedSecret"`
		ControlSecret string `json:"controlSecret"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, account.NewError(account.CodeValidation, err))
		return
	}
	violations := registerSchema.check(map[string]string{
		"username":      payload.Username,
		"name":          payload.Name,
		"linked":        payload.Linked,
		"linkedSecret":  payload.LinkedSecret,
		"controlSecret": payload.ControlSecret,
	})
	if payload.Temporary == nil {
		violations = append(violations, "temporary is required")
	}
	// Linkage requires both the target and its proof.
	if (payload.Linked == "") != (payload.LinkedSecret == "") {
		violations = append(violations, "linked and linkedSecret must be supplied together")
	}
	if len(violations) > 0 {
		r.logger.Warn("register request rejected", "violations", violations)
		writeFailure(w, account.NewError(account.CodeValidation, errors.New(strings.Join(violations, "; "))))
		return
	}
	acc, err := r.accounts.Register(req.Context(), account.RegisterInput{
		Username:      payload.Username,
		DisplayName:   payload.Name,
		Temporary:     *payload.Temporary,
		Linked:        payload.Linked,
		LinkedSecret:  payload.LinkedSecret,
		ControlSecret: payload.ControlSecret,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, map[string]any{"account": acc})
}

func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username    string `json:"username"`
		Secret      string `json:"secret"`
		Name        string `json:"name"`
		NewUsername string `json:"newUsername"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, account.NewError(account.CodeValidation, err))
		return
	}
	violations := updateSchema.check(map[string]string{
		"username":    payload.Username,
		"secret":      payload.Secret,
		"name":        payload.Name,
		"newUsername": payload.NewUsername,
	})
	if len(violations) > 0 {
		r.logger.Warn("update request rejected", "violations", violations)
		writeFailure(w, account.NewError(account.CodeValidation, errors.New(strings.Join(violations, "; "))))
		return
	}
	acc, err := r.accounts.Update(req.Context(), account.UpdateInput{
		Username:    payload.Username,
		Secret:      payload.Secret,
		DisplayName: payload.Name,
		NewUsername: payload.NewUsername,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, map[string]any{"account": acc})
}

func (r *Router) handleBatch(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Users []string `json:"users"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeFailure(w, account.NewError(account.CodeValidation, err))
		return
	}
	if len(payload.Users) == 0 || len(payload.Users) > account.BatchReadLimit {
		writeFailure(w, account.NewError(account.CodeValidation, errors.New("users list size out of range")))
		return
	}
	result, err := r.accounts.BatchPublic(req.Context(), payload.Users)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, map[string]any{"data": result.Data, "partial": result.Partial})
}

// authData is the credential envelope the realtime gateway forwards.
type authData struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

func (r *Router) handleHandshake(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		AuthData *authData `json:"authData"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.AuthData == nil {
		writeFailure(w, account.NewError(account.CodeValidation, errors.New("authData required")))
		return
	}
	result, err := r.auth.Handshake(payload.AuthData.Secret)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, result)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		AuthData *authData `json:"authData"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.AuthData == nil ||
		payload.AuthData.Username == "" || payload.AuthData.Secret == "" {
		writeFailure(w, account.NewError(account.CodeValidation, errors.New("authData with username and secret required")))
		return
	}
	result, err := r.auth.Login(req.Context(), payload.AuthData.Username, payload.AuthData.Secret)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, result)
}

func (r *Router) handleAccountsWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub := r.events.Hub()
	hub.Register(events.TopicAccounts, client)
	go func() {
		defer func() {
			hub.Unregister(events.TopicAccounts, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleAccountsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	hub := r.events.Hub()
	hub.Register(events.TopicAccounts, client)
	defer func() {
		hub.Unregister(events.TopicAccounts, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(sseHeartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.storeHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.storeHealth(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if gatewayActorFromContext(ctx) {
			actor = "gateway"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
