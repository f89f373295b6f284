package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/pesaprime/pkg/logger"
)

// maxCapturedBody bounds how much of an error body the logger keeps
const maxCapturedBody = 4096

// errorBody records the body of error responses so the code can be logged
type errorBody struct {
	chimiddleware.WrapResponseWriter
	buf bytes.Buffer
}

func (e *errorBody) Write(b []byte) (int, error) {
	if e.Status() >= http.StatusBadRequest && e.buf.Len() < maxCapturedBody {
		e.buf.Write(b)
	}
	return e.WrapResponseWriter.Write(b)
}

// errorCode pulls the machine-readable code out of an ErrorResponse body
func errorCode(body []byte) (code, detail string) {
	var obj struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &obj) != nil {
		return "", ""
	}
	return obj.Code, obj.Detail
}

// Logger logs one line per request. The request ID from chi is copied onto
// the logger context key so services log it too; the account ID is taken
// from the matched route once the handler has run.
func Logger(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &errorBody{WrapResponseWriter: chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)}

			reqID := chimiddleware.GetReqID(r.Context())
			if reqID != "" {
				r = r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, reqID))
			}

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				}
				if reqID != "" {
					attrs = append(attrs, "request_id", reqID)
				}
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						attrs = append(attrs, "route", pattern)
					}
					if accountID := rctx.URLParam("accountID"); accountID != "" {
						attrs = append(attrs, "account_id", accountID)
					}
				}

				if status < http.StatusBadRequest {
					log.Info("HTTP request", attrs...)
					return
				}

				if code, detail := errorCode(ww.buf.Bytes()); code != "" {
					attrs = append(attrs, "code", code)
					if detail != "" {
						attrs = append(attrs, "detail", detail)
					}
				}
				if status >= http.StatusInternalServerError {
					log.Error("HTTP request", attrs...)
				} else {
					log.Warn("HTTP request", attrs...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
