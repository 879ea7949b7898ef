package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/lockwhz/ai-scan-service/config"
	"github.com/lockwhz/ai-scan-service/internal/auth"
	"github.com/lockwhz/ai-scan-service/internal/cache"
	"github.com/lockwhz/ai-scan-service/internal/db"
	"github.com/lockwhz/ai-scan-service/internal/git"
	"github.com/lockwhz/ai-scan-service/internal/llm"
	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/internal/ratelimit"
	"github.com/lockwhz/ai-scan-service/internal/scan"
	"github.com/lockwhz/ai-scan-service/internal/secrets"
	"github.com/lockwhz/ai-scan-service/internal/services"
	"github.com/lockwhz/ai-scan-service/internal/usage"
	"github.com/lockwhz/ai-scan-service/internal/vault"
)

type appOptions struct {
	withAuth    bool // API: precisa validar bearer tokens
	withLimiter bool
	noCache     bool
}

// app reúne as dependências montadas a partir da configuração.
type app struct {
	orchestrator *services.Orchestrator
	verifier     auth.Verifier
	usage        *usage.Service // nil sem banco
	database     *db.Database
}

func loadAWSConfig(ctx context.Context, c *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newApp(ctx context.Context, c *config.Config, opts appOptions) (*app, error) {
	sm, err := secretsManagerFor(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := resolveSecrets(ctx, c, sm); err != nil {
		return nil, err
	}
	if c.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai_api_key is required")
	}

	a := &app{}
	deps := services.Deps{
		SelectOptions: scan.SelectOptions{MaxFiles: c.MaxFilesPerScan, MaxFileSize: c.MaxFileSizeBytes},
	}

	if c.HasDatabase() {
		a.database = db.NewDatabase()
		conn, err := a.database.Connect(ctx, c.PostgresConnString())
		if err != nil {
			return nil, err
		}
		store := db.NewRDSStore(conn)
		if !opts.noCache {
			deps.Cache = cache.New(store)
		}
		if opts.withLimiter {
			deps.Limiter = ratelimit.New(store, c.RateLimitMaxRequests, c.RateLimitWindow, c.RateLimitFunction)
		}
		a.usage = usage.NewService(store)
	} else {
		logger.Log.Warn("Banco não configurado (PG_HOST/PG_NAME): cache, rate limit e uso mensal desabilitados")
	}

	deps.Fetchers = git.NewClients(git.Endpoints{
		GitHub:    c.GitHubAPIURL,
		GitLab:    c.GitLabAPIURL,
		Bitbucket: c.BitbucketAPIURL,
	}, c.GitHTTPTimeout, &git.RemoteHeadResolver{})

	deps.Analyzer = scan.NewAIScanner(llm.New(llm.Options{
		BaseURL:   c.LLMBaseURL,
		APIKey:    c.OpenAIAPIKey,
		Model:     c.LLMModel,
		MaxTokens: c.LLMMaxTokens,
		Timeout:   c.LLMTimeout,
	}), c.LLMCallDelay)

	if c.EnableVault {
		deps.Vault = &vault.DefaultVaultClient{}
	} else {
		deps.Vault = &vault.NoOpVaultClient{}
	}

	if opts.withAuth {
		verifier, err := newVerifier(c)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.verifier = verifier
		deps.Verifier = verifier
	}

	a.orchestrator = services.NewOrchestrator(deps)
	return a, nil
}

func newVerifier(c *config.Config) (auth.Verifier, error) {
	switch c.AuthMode {
	case "remote":
		if c.IdentityURL == "" {
			return nil, fmt.Errorf("identity_url is required when auth_mode is remote")
		}
		return auth.NewRemoteVerifier(c.IdentityURL, c.IdentityAPIKey, c.GitHTTPTimeout), nil
	default:
		if c.AuthJWTSecret == "" {
			return nil, fmt.Errorf("auth_jwt_secret is required when auth_mode is jwt")
		}
		return auth.NewJWTVerifier(c.AuthJWTSecret), nil
	}
}

// secretsManagerFor usa o AWS Secrets Manager quando habilitado; senão os IDs
// configurados são nomes de variáveis de ambiente.
func secretsManagerFor(ctx context.Context, c *config.Config) (secrets.SecretsManager, error) {
	if !c.EnableSecrets {
		return &secrets.DefaultSecretsManager{}, nil
	}
	awsCfg, err := loadAWSConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	return secrets.NewAWSSecretsManager(awsCfg), nil
}

// resolveSecrets substitui a senha do banco e a chave da LLM pelos valores dos
// segredos configurados.
func resolveSecrets(ctx context.Context, c *config.Config, sm secrets.SecretsManager) error {
	if c.DBSecretID == "" && c.OpenAISecretID == "" {
		return nil
	}

	if c.DBSecretID != "" {
		raw, err := sm.GetSecret(ctx, c.DBSecretID)
		if err != nil {
			return fmt.Errorf("db secret: %w", err)
		}
		if c.PGPassword, err = secrets.Field(raw, "password"); err != nil {
			return fmt.Errorf("db secret: %w", err)
		}
	}
	if c.OpenAISecretID != "" {
		raw, err := sm.GetSecret(ctx, c.OpenAISecretID)
		if err != nil {
			return fmt.Errorf("openai secret: %w", err)
		}
		if c.OpenAIAPIKey, err = secrets.Field(raw, "api_key"); err != nil {
			return fmt.Errorf("openai secret: %w", err)
		}
	}
	logger.Log.Infof("Segredos carregados via %T", sm)
	return nil
}

func (a *app) Close() {
	if a.database == nil {
		return
	}
	if err := a.database.Close(); err != nil {
		logger.Log.Errorf("Erro ao fechar conexão com o banco: %v", err)
	}
}
