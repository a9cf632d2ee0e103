// Package middleware provides HTTP middleware functions for the gvmscan API server.
// This package implements logging, metrics, authentication, rate limiting, and other
// cross-cutting concerns for API requests.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/anstrom/gvmscan/internal/auth"
	"github.com/anstrom/gvmscan/internal/logging"
	"github.com/anstrom/gvmscan/internal/metrics"
)

// HTTP method constants
const (
	methodPOST    = "POST"
	methodPUT     = "PUT"
	methodOPTIONS = "OPTIONS"
)

// ContextKey represents a context key type.
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey ContextKey = "request_id"
	// StartTimeKey is the context key for request start time.
	StartTimeKey ContextKey = "start_time"
	// ClientIPKey is the context key for the resolved client address.
	ClientIPKey ContextKey = "client_ip"
	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"
	// httpErrorThreshold is the status code threshold for HTTP errors.
	httpErrorThreshold = 400
	httpServerErrors   = 500
)

// Paths reachable without an API key.
var publicPaths = map[string]bool{
	"/api/v1/health":   true,
	"/api/v1/liveness": true,
	"/api/v1/version":  true,
}

// RateLimiter hands out one token bucket per client.
type RateLimiter struct {
	clients map[string]*client
	mutex   sync.Mutex
	limit   rate.Limit
	burst   int
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with bursts of up to burst requests.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Allow checks if a request from the given IP is allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

// Cleanup forgets clients not seen for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := time.Now().Add(-idle)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Logging creates a logging middleware that assigns a request ID and logs
// HTTP requests and responses.
func Logging(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, StartTimeKey, start)
			r = r.WithContext(ctx)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			w.Header().Set(RequestIDHeader, requestID)

			logger.Debug("HTTP request started",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", getClientIP(r),
				"user_agent", r.UserAgent())

			next.ServeHTTP(wrapped, r)

			logger.Info("HTTP request completed",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", wrapped.statusCode,
				"response_size", wrapped.size,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", getClientIP(r))
		})
	}
}

// Metrics creates a metrics middleware that collects HTTP request metrics.
// Paths are labelled with their route template to bound cardinality.
func Metrics(rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			if rec == nil {
				return
			}
			path := routePath(r)
			rec.IncrementHTTPRequests(r.Method, path, strconv.Itoa(wrapped.statusCode))
			rec.RecordHTTPDuration(r.Method, path, time.Since(start))

			switch {
			case wrapped.statusCode >= httpServerErrors:
				rec.IncrementHTTPErrors(r.Method, path, "server_error")
			case wrapped.statusCode >= httpErrorThreshold:
				rec.IncrementHTTPErrors(r.Method, path, "client_error")
			}
		})
	}
}

// Recovery creates a recovery middleware that catches panics.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("HTTP request panic recovered",
						"request_id", GetRequestID(r),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", err,
						"stack", string(debug.Stack()),
						"remote_addr", getClientIP(r))

					writeJSONError(w, r, http.StatusInternalServerError, "Internal server error", "")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Authentication creates an API key middleware. keyHashes are bcrypt hashes
// of the accepted keys; health endpoints are always reachable.
func Authentication(keyHashes []string, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == methodOPTIONS {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
					apiKey = strings.TrimPrefix(header, "Bearer ")
				}
			}

			if apiKey == "" {
				logger.Warn("API request without authentication",
					"request_id", GetRequestID(r),
					"path", r.URL.Path,
					"remote_addr", getClientIP(r))
				writeJSONError(w, r, http.StatusUnauthorized, "Authentication required",
					"Provide API key in X-API-Key header or Authorization: Bearer <key>")
				return
			}

			if !auth.MatchesAny(apiKey, keyHashes) {
				logger.Warn("API request with invalid key",
					"request_id", GetRequestID(r),
					"key_prefix", auth.DisplayPrefix(apiKey),
					"path", r.URL.Path,
					"remote_addr", getClientIP(r))
				writeJSONError(w, r, http.StatusUnauthorized, "Authentication failed: Invalid API key", "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit creates a per-client rate limiting middleware. Idle clients are
// forgotten until ctx is done.
func RateLimit(ctx context.Context, rps float64, burst int, logger *logging.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(5 * time.Minute)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(rps, 'f', -1, 64))
			w.Header().Set("X-RateLimit-Burst", strconv.Itoa(burst))

			if !limiter.Allow(clientIP) {
				logger.Warn("Rate limit exceeded",
					"request_id", GetRequestID(r),
					"client_ip", clientIP,
					"path", r.URL.Path)

				w.Header().Set("Retry-After", "1")
				writeJSONError(w, r, http.StatusTooManyRequests, "Rate limit exceeded",
					fmt.Sprintf("Maximum %g requests per second", rps))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ContentType creates a content type middleware that validates request content types.
func ContentType() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == methodPOST || r.Method == methodPUT {
				contentType := r.Header.Get("Content-Type")
				if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
					writeJSONError(w, r, http.StatusUnsupportedMediaType, "Unsupported media type",
						"Content-Type must be application/json")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestTimeout bounds the context of every request; engine calls made on
// its behalf fail once it expires.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BodyLimit caps request bodies at limit bytes.
func BodyLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && limit > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds common security headers.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", "default-src 'none'")

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture response information.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// GetRequestID extracts the request ID from context.
func GetRequestID(r *http.Request) string {
	if requestID, ok := r.Context().Value(RequestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":      msg,
		"request_id": GetRequestID(r),
		"timestamp":  time.Now().UTC(),
	}
	if detail != "" {
		response["message"] = detail
	}
	_ = json.NewEncoder(w).Encode(response)
}

// routePath returns the matched route template, or the raw path when no
// route matched.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// ClientIP resolves the client address once per request. Forwarding
// headers are believed only when the peer is inside one of the trusted
// proxy CIDRs; otherwise the peer address is the client.
func ClientIP(trustedProxies []string) (func(http.Handler) http.Handler, error) {
	trusted := make([]*net.IPNet, 0, len(trustedProxies))
	for _, cidr := range trustedProxies {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		trusted = append(trusted, network)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClientIPKey, ip)))
		})
	}, nil
}

func resolveClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer := remoteHost(r)
	if !isTrusted(peer, trusted) {
		return peer
	}

	// Walk right to left: the nearest untrusted hop is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// getClientIP returns the address resolved by ClientIP, or the peer
// address when that middleware did not run.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}
