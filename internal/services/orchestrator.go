// Package services coordena o pipeline de scan e a intake de jobs pela fila.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockwhz/ai-scan-service/internal/auth"
	"github.com/lockwhz/ai-scan-service/internal/git"
	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/internal/processor"
	"github.com/lockwhz/ai-scan-service/internal/ratelimit"
	"github.com/lockwhz/ai-scan-service/internal/sanitizer"
	"github.com/lockwhz/ai-scan-service/internal/scan"
	"github.com/lockwhz/ai-scan-service/internal/vault"
	"github.com/lockwhz/ai-scan-service/models"
)

const (
	MethodAI       = "AI-Powered"
	MethodAICached = "AI-Powered (Cached)"
)

// FetcherFactory devolve o fetcher da plataforma (implementada por *git.Clients).
type FetcherFactory interface {
	For(platform models.Platform, token string) (git.RepositoryFetcher, error)
}

// ScanCache é implementada por *cache.Cache.
type ScanCache interface {
	Get(ctx context.Context, ref models.RepositoryRef, commitSHA string) (*models.CacheEntry, error)
	Put(ctx context.Context, ref models.RepositoryRef, commitSHA string, entry models.CacheEntry) error
}

// RateLimiter é implementada por *ratelimit.Limiter.
type RateLimiter interface {
	Check(ctx context.Context, userID string) ratelimit.Decision
	Record(ctx context.Context, userID string) error
}

// Deps agrupa os colaboradores do orquestrador. Limiter, Cache e Vault podem ser nil.
type Deps struct {
	Verifier      auth.Verifier
	Limiter       RateLimiter
	Cache         ScanCache
	Fetchers      FetcherFactory
	Vault         vault.VaultClient
	Analyzer      scan.Analyzer
	SelectOptions scan.SelectOptions
}

// Orchestrator executa AuthCheck → RateLimit → URL → Commit → Cache → (Fetch → Analyze →
// Process → CachePut) → RateRecord. Só o motor de análise tem retry.
type Orchestrator struct {
	deps Deps
	now  func() time.Time
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.SelectOptions.MaxFiles <= 0 || deps.SelectOptions.MaxFileSize <= 0 {
		deps.SelectOptions = scan.DefaultSelectOptions()
	}
	return &Orchestrator{deps: deps, now: time.Now}
}

// Scan autentica o bearer token e executa o scan para o usuário dono dele.
func (o *Orchestrator) Scan(ctx context.Context, bearerToken, repoURL, accessToken string) (*models.ScanResponse, error) {
	defer logger.TraceAuto()()

	if o.deps.Verifier == nil {
		return nil, fmt.Errorf("%w: no verifier configured", models.ErrUnauthenticated)
	}
	userID, err := o.deps.Verifier.Verify(ctx, bearerToken)
	if err != nil {
		return nil, err
	}
	return o.ScanForUser(ctx, userID, repoURL, accessToken)
}

// ScanForUser executa o pipeline para um usuário já autenticado (API ou fila).
func (o *Orchestrator) ScanForUser(ctx context.Context, userID, repoURL, accessToken string) (*models.ScanResponse, error) {
	start := time.Now()
	defer logger.Trace("ScanForUser", start)

	if o.deps.Limiter != nil {
		if d := o.deps.Limiter.Check(ctx, userID); !d.Allowed {
			logger.Log.Warnf("Rate limit atingido para %s (reset %s)", userID, d.ResetAt.Format(time.RFC3339))
			return nil, &RateLimitError{Decision: d}
		}
	}

	ref, err := git.Resolve(repoURL)
	if err != nil {
		return nil, err
	}

	fetcher, err := o.deps.Fetchers.For(ref.Platform, o.platformToken(ref.Platform, accessToken))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRepositoryUnavailable, err)
	}

	commitSHA, err := fetcher.LatestCommit(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRepositoryUnavailable, err)
	}
	logger.Log.Infof("Scan de %s/%s @ %s para %s", ref.Platform, ref.FullName(), commitSHA, userID)

	if resp := o.fromCache(ctx, ref, commitSHA); resp != nil {
		o.record(ctx, userID)
		return resp, nil
	}

	tree, err := fetcher.ListTree(ctx, ref, commitSHA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRepositoryUnavailable, err)
	}
	selected := scan.SelectFiles(tree, o.deps.SelectOptions)
	logger.Log.Infof("%d de %d entradas selecionadas para análise", len(selected), len(tree))

	var (
		all      []models.Finding
		analyzed []string
		hashes   = make(map[string]string, len(selected))
	)
	for _, f := range selected {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan interrupted: %w", err)
		}

		content, err := fetcher.FetchFile(ctx, ref, commitSHA, f.Path)
		if err != nil {
			logger.Log.Errorf("Arquivo ignorado %s: %v", f.Path, fmt.Errorf("%w: %v", models.ErrFileFetchFailed, err))
			continue
		}
		analyzed = append(analyzed, f.Path)
		sum := sha256.Sum256([]byte(content))
		hashes[f.Path] = hex.EncodeToString(sum[:])

		clean, types := sanitizer.Sanitize(content)
		if len(types) > 0 {
			logger.Log.Debugf("Conteúdo de %s sanitizado antes do LLM: %v", f.Path, types)
		}

		findings, err := o.deps.Analyzer.Analyze(ctx, f.Path, clean)
		if err != nil {
			logger.Log.Errorf("Análise falhou para %s: %v", f.Path, err)
			continue
		}
		all = append(all, findings...)
	}

	res := processor.Process(all)
	logger.Log.Infof("%d findings (%d antes da deduplicação), por severidade: %v",
		len(res.Findings), res.BeforeDedup, processor.CountBySeverity(res.Findings))

	meta := models.ScanMetadata{
		FilesAnalyzed:     nonNil(analyzed),
		ContentHashes:     hashes,
		AnalysisTimestamp: o.now().UTC(),
		IssuesBeforeDedup: res.BeforeDedup,
	}

	if o.deps.Cache != nil {
		entry := models.CacheEntry{
			Results:       res.Findings,
			SecurityScore: res.Score,
			FilesScanned:  len(analyzed),
			ScanMetadata:  meta,
		}
		if err := o.deps.Cache.Put(ctx, ref, commitSHA, entry); err != nil {
			logger.Log.Errorf("Falha ao gravar cache de %s: %v", ref.FullName(), err)
		}
	}
	o.record(ctx, userID)

	return &models.ScanResponse{
		Success:                   true,
		ScanID:                    uuid.New().String(),
		Results:                   nonNilFindings(res.Findings),
		SecurityScore:             res.Score,
		FilesScanned:              len(analyzed),
		Repository:                ref.FullName(),
		Platform:                  ref.Platform,
		AnalysisMethod:            MethodAI,
		CommitSHA:                 commitSHA,
		ScanMetadata:              meta,
		IssuesBeforeDeduplication: res.BeforeDedup,
		SanitizedIssues:           res.SanitizedIssues,
	}, nil
}

// fromCache devolve nil em miss. Erro de leitura vira miss.
func (o *Orchestrator) fromCache(ctx context.Context, ref models.RepositoryRef, commitSHA string) *models.ScanResponse {
	if o.deps.Cache == nil {
		return nil
	}
	entry, err := o.deps.Cache.Get(ctx, ref, commitSHA)
	if err != nil {
		logger.Log.Warnf("Leitura do cache falhou, seguindo sem cache: %v", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	sanitized := 0
	for _, f := range entry.Results {
		if f.Sanitized {
			sanitized++
		}
	}
	// entradas antigas não têm a contagem original
	beforeDedup := entry.ScanMetadata.IssuesBeforeDedup
	if beforeDedup < len(entry.Results) {
		beforeDedup = len(entry.Results)
	}
	logger.Log.Infof("Cache hit para %s @ %s", ref.FullName(), commitSHA)
	return &models.ScanResponse{
		Success:                   true,
		ScanID:                    uuid.New().String(),
		Results:                   nonNilFindings(entry.Results),
		SecurityScore:             entry.SecurityScore,
		FilesScanned:              entry.FilesScanned,
		Repository:                ref.FullName(),
		Platform:                  ref.Platform,
		AnalysisMethod:            MethodAICached,
		CommitSHA:                 commitSHA,
		ScanMetadata:              entry.ScanMetadata,
		IssuesBeforeDeduplication: beforeDedup,
		SanitizedIssues:           sanitized,
		Cached:                    true,
	}
}

func (o *Orchestrator) record(ctx context.Context, userID string) {
	if o.deps.Limiter == nil {
		return
	}
	if err := o.deps.Limiter.Record(ctx, userID); err != nil {
		logger.Log.Errorf("Falha ao registrar rate limit de %s: %v", userID, err)
	}
}

// platformToken prefere o token da requisição e cai para o token de serviço do vault.
func (o *Orchestrator) platformToken(p models.Platform, requestToken string) string {
	if requestToken != "" || o.deps.Vault == nil {
		return requestToken
	}
	token, err := o.deps.Vault.GetPlatformToken(p)
	if err != nil {
		if !errors.Is(err, vault.ErrNoCredentials) {
			logger.Log.Warnf("Vault sem token para %s: %v", p, err)
		}
		return ""
	}
	return token
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFindings(f []models.Finding) []models.Finding {
	if f == nil {
		return []models.Finding{}
	}
	return f
}
