package api

import (
	"encoding/json"
	"net/http"
	"time"

	"bountyexpo/internal/apperr"

	"go.uber.org/zap"
)

// IdempotencyHeader lets clients retry a money-moving call safely.
const IdempotencyHeader = "Idempotency-Key"

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, code int, errCode, message string, log *zap.Logger) {
	if code >= http.StatusInternalServerError {
		log.Error("API error", zap.Int("status", code), zap.String("code", errCode), zap.String("message", message))
	} else {
		log.Debug("API error", zap.Int("status", code), zap.String("code", errCode), zap.String("message", message))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	resp := ErrorResponse{
		Error:   errCode,
		Message: message,
	}
	if errCode != "" {
		resp.Code = errCode
	}

	json.NewEncoder(w).Encode(resp)
}

// writeAppError maps a service error onto its HTTP status and public message
func writeAppError(w http.ResponseWriter, err error, log *zap.Logger) {
	status, code := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
	}
	WriteError(w, status, code, apperr.Message(err), log)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, log *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", log)
		return false
	}
	return true
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get(IdempotencyHeader)
}

// RequestLogger logs HTTP requests and responses
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// WebSocket upgrades need the raw ResponseWriter
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
