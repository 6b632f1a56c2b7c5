package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/metrics"
	"github.com/docuflow/intake-service/internal/models"
)

// maxBodyBytes bounds an upload; base64 inflates documents by a third.
const maxBodyBytes = 32 << 20

// NewRouter mounts the endpoints on a chi router with CORS, request logging,
// and Prometheus metrics.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: strings.Split(strings.ReplaceAll(models.CORSAllowHeaders, " ", ""), ","),
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, path := range []string{"/analyze", "/analyze-document", "/analyze-multi-instrument", "/adaptive-extraction"} {
		r.Post(path, h.ServeHTTP)
	}
	return r
}

// ServeHTTP adapts a net/http request to Route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProxyResponse(w, mustError(http.StatusRequestEntityTooLarge, "request body too large"))
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	event := events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(body),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID: middleware.GetReqID(r.Context()),
		},
	}

	resp, err := h.Route(r.Context(), event)
	if err != nil {
		zap.L().Error("route failed", zap.Error(err))
		resp = mustError(http.StatusInternalServerError, "internal error")
	}
	writeProxyResponse(w, resp)
}

func mustError(status int, msg string) events.APIGatewayProxyResponse {
	resp, _ := models.ErrorResponse(status, msg)
	return resp
}

func writeProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		// the cors middleware owns these on the dev server
		if strings.HasPrefix(k, "Access-Control-") {
			continue
		}
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http_request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("response_bytes", ww.BytesWritten()),
		)
	})
}
