package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

// ErrInvalidJob marca mensagens da fila sem os campos obrigatórios.
var ErrInvalidJob = errors.New("invalid scan job")

// JobScanner é a parte do Orchestrator usada pelos workers.
type JobScanner interface {
	ScanForUser(ctx context.Context, userID, repoURL, accessToken string) (*models.ScanResponse, error)
}

// ProcessJob executa o fluxo completo de um job vindo da fila. O usuário já foi
// autenticado por quem publicou a mensagem; o rate limit continua valendo.
func ProcessJob(ctx context.Context, job *models.ScanJob, scanner JobScanner) (*models.ScanResponse, error) {
	defer logger.TraceAuto()()
	start := time.Now()
	logger.Log.Debugf("ProcessService: Iniciando processamento do job %s", job.ScanID)

	if job.UserID == "" || job.RepositoryURL == "" {
		return nil, fmt.Errorf("%w %s: user_id e repository_url são obrigatórios", ErrInvalidJob, job.ScanID)
	}

	resp, err := scanner.ScanForUser(ctx, job.UserID, job.RepositoryURL, job.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("ProcessService: job %s: %w", job.ScanID, err)
	}

	logger.Log.Infof("ProcessService: Job %s (%s @ %s) concluído em %d ms: %d findings, score %.0f, método %s",
		job.ScanID, resp.Repository, resp.CommitSHA, time.Since(start).Milliseconds(),
		len(resp.Results), resp.SecurityScore.Overall, resp.AnalysisMethod)
	return resp, nil
}

// IsPermanent indica erros que não melhoram com uma nova entrega da mensagem.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidJob) ||
		errors.Is(err, models.ErrInvalidURL) ||
		errors.Is(err, models.ErrUnauthenticated) ||
		errors.Is(err, models.ErrRateLimited)
}
