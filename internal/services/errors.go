package services

import (
	"fmt"

	"github.com/lockwhz/ai-scan-service/internal/ratelimit"
	"github.com/lockwhz/ai-scan-service/models"
)

// RateLimitError carrega a decisão do limiter para montar a resposta 429.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s, resets at %s",
		e.Decision.Limit, e.Decision.Window, e.Decision.ResetAt.UTC().Format("2006-01-02T15:04:05Z"))
}

func (e *RateLimitError) Unwrap() error { return models.ErrRateLimited }
