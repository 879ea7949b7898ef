// Package ratelimit aplica uma janela deslizante de requisições por usuário e função,
// contada no banco para valer entre processos.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

// Store é a persistência das linhas de rate limit (implementada por db.RDSStore).
type Store interface {
	WindowUsage(ctx context.Context, userID, function string, since time.Time) (int, time.Time, error)
	InsertRateLimit(ctx context.Context, rec models.RateLimitRecord) error
}

// Decision é o resultado de Check.
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Limit     int           `json:"maxRequests"`
	Remaining int           `json:"remainingRequests"`
	ResetAt   time.Time     `json:"resetTime"`
	Window    time.Duration `json:"-"`
}

type Limiter struct {
	store    Store
	limit    int
	window   time.Duration
	function string
	now      func() time.Time
}

func New(store Store, limit int, window time.Duration, function string) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, function: function, now: time.Now}
}

// WithClock troca o relógio (testes).
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check nunca devolve erro: se a contagem falhar, a requisição é permitida.
func (l *Limiter) Check(ctx context.Context, userID string) Decision {
	now := l.now()
	windowStart := now.Add(-l.window)

	used, oldest, err := l.store.WindowUsage(ctx, userID, l.function, windowStart)
	if err != nil {
		logger.Log.Errorf("Falha ao consultar rate limit de %s, liberando: %v", userID, err)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: now.Add(l.window), Window: l.window}
	}

	resetAt := now.Add(l.window)
	if !oldest.IsZero() {
		resetAt = oldest.Add(l.window)
	}
	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   used < l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Window:    l.window,
	}
}

// Record registra uma tentativa concluída, inclusive respostas vindas do cache.
func (l *Limiter) Record(ctx context.Context, userID string) error {
	rec := models.RateLimitRecord{
		UserID:       userID,
		FunctionName: l.function,
		RequestCount: 1,
		WindowStart:  l.now(),
	}
	if err := l.store.InsertRateLimit(ctx, rec); err != nil {
		return fmt.Errorf("record rate limit for %s: %w: %v", userID, models.ErrPersistenceFailed, err)
	}
	return nil
}
