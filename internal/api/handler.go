// Package api expõe o scan e o uso mensal por HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/lockwhz/ai-scan-service/internal/auth"
	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/internal/ratelimit"
	"github.com/lockwhz/ai-scan-service/internal/services"
	"github.com/lockwhz/ai-scan-service/internal/usage"
	"github.com/lockwhz/ai-scan-service/models"
)

// Scanner é implementada por *services.Orchestrator.
type Scanner interface {
	Scan(ctx context.Context, bearerToken, repoURL, accessToken string) (*models.ScanResponse, error)
}

// UsageChecker é implementada por *usage.Service.
type UsageChecker interface {
	Check(ctx context.Context, userID string) (*usage.Report, error)
}

type ScanRequest struct {
	RepoURL     string `json:"repoUrl"`
	AccessToken string `json:"accessToken,omitempty"`
}

type ErrorResponse struct {
	Success       bool           `json:"success"`
	Error         string         `json:"error"`
	Message       string         `json:"message,omitempty"`
	RateLimitInfo *RateLimitInfo `json:"rateLimitInfo,omitempty"`
}

type RateLimitInfo struct {
	MaxRequests       int     `json:"maxRequests"`
	WindowHours       float64 `json:"windowHours"`
	RemainingRequests int     `json:"remainingRequests"`
	ResetTime         string  `json:"resetTime"`
}

type Handler struct {
	scanner  Scanner
	verifier auth.Verifier
	usage    UsageChecker
}

// NewHandler: usage pode ser nil quando o serviço roda sem banco.
func NewHandler(scanner Scanner, verifier auth.Verifier, usageChecker UsageChecker) *Handler {
	return &Handler{scanner: scanner, verifier: verifier, usage: usageChecker}
}

type RouterOptions struct {
	AllowOrigin    string
	BodyLimitBytes int64
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(opts.AllowOrigin))
	r.Use(BodySizeLimit(opts.BodyLimitBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scans", h.Scan)
		r.Get("/scan-usage", h.ScanUsage)
	})
	return r
}

// Scan executa o pipeline completo para o usuário do bearer token.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req ScanRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, token, ErrorResponse{Error: "invalid_request", Message: "request body must be JSON with repoUrl"})
		return
	}
	if req.RepoURL == "" {
		h.badRequest(w, r, token, ErrorResponse{Error: models.ErrInvalidURL.Error(), Message: "repoUrl is required"})
		return
	}

	resp, err := h.scanner.Scan(r.Context(), token, req.RepoURL, req.AccessToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// badRequest responde 400 só para tokens válidos; token rejeitado continua 401.
func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, token string, body ErrorResponse) {
	if h.verifier != nil {
		if _, err := h.verifier.Verify(r.Context(), token); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, r, http.StatusBadRequest, body)
}

// ScanUsage devolve o consumo mensal e o limite do plano do usuário.
func (h *Handler) ScanUsage(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.usage == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "usage tracking is not configured"})
		return
	}

	report, err := h.usage.Check(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *services.RateLimitError
	if errors.As(err, &rle) {
		setRateLimitHeaders(w, rle.Decision)
		writeJSON(w, r, http.StatusTooManyRequests, ErrorResponse{
			Error:         models.ErrRateLimited.Error(),
			Message:       err.Error(),
			RateLimitInfo: rateLimitInfo(rle.Decision),
		})
		return
	}

	kind := models.ErrorKind(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidURL):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}

	resp := ErrorResponse{Error: kind, Message: err.Error()}
	if kind == "internal_error" {
		logger.Log.Errorf("Erro interno na requisição %s: %v", middleware.GetReqID(r.Context()), err)
		resp.Message = "unexpected error while processing the request"
	} else if status == http.StatusInternalServerError {
		logger.Log.Errorf("Requisição %s falhou: %v", middleware.GetReqID(r.Context()), err)
	}
	writeJSON(w, r, status, resp)
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func rateLimitInfo(d ratelimit.Decision) *RateLimitInfo {
	return &RateLimitInfo{
		MaxRequests:       d.Limit,
		WindowHours:       d.Window.Hours(),
		RemainingRequests: d.Remaining,
		ResetTime:         d.ResetAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
