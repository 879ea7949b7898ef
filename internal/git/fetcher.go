// Package git resolve URLs de repositório e busca árvore, commit e conteúdo de arquivos
// pelas APIs REST do GitHub, GitLab e Bitbucket.
package git

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lockwhz/ai-scan-service/models"
)

const (
	maxFileBodyBytes = 2 << 20
	maxTreePages     = 50
)

// RepositoryFetcher lista e lê arquivos de um repositório remoto sem cloná-lo.
type RepositoryFetcher interface {
	LatestCommit(ctx context.Context, ref models.RepositoryRef) (string, error)
	ListTree(ctx context.Context, ref models.RepositoryRef, sha string) ([]models.RepoFile, error)
	FetchFile(ctx context.Context, ref models.RepositoryRef, sha, path string) (string, error)
}

// HeadResolver resolve o commit do branch padrão direto nos refs do remoto.
type HeadResolver interface {
	ResolveHead(ctx context.Context, ref models.RepositoryRef, token string) (string, error)
}

type Endpoints struct {
	GitHub    string
	GitLab    string
	Bitbucket string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		GitHub:    "https://api.github.com",
		GitLab:    "https://gitlab.com/api/v4",
		Bitbucket: "https://api.bitbucket.org/2.0",
	}
}

// Clients cria fetchers por plataforma compartilhando o mesmo http.Client.
type Clients struct {
	endpoints  Endpoints
	httpClient *http.Client
	heads      HeadResolver
}

func NewClients(endpoints Endpoints, timeout time.Duration, heads HeadResolver) *Clients {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Clients{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
		heads:      heads,
	}
}

// For devolve o fetcher da plataforma. token pode ser vazio para repositórios públicos.
func (c *Clients) For(platform models.Platform, token string) (RepositoryFetcher, error) {
	switch platform {
	case models.PlatformGitHub:
		rest := c.rest(c.endpoints.GitHub, "Authorization", prefixed("token ", token))
		rest.accept = "application/vnd.github.v3+json"
		return &GitHubFetcher{rest: rest, token: token, heads: c.heads}, nil
	case models.PlatformGitLab:
		return &GitLabFetcher{rest: c.rest(c.endpoints.GitLab, "PRIVATE-TOKEN", token), token: token, heads: c.heads}, nil
	case models.PlatformBitbucket:
		return &BitbucketFetcher{rest: c.rest(c.endpoints.Bitbucket, "Authorization", prefixed("Bearer ", token)), token: token, heads: c.heads}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
}

func (c *Clients) rest(baseURL, authHeader, authValue string) *restClient {
	return &restClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: c.httpClient,
		authHeader: authHeader,
		authValue:  authValue,
	}
}

func prefixed(prefix, token string) string {
	if token == "" {
		return ""
	}
	return prefix + token
}

// StatusError é devolvido quando o provedor responde fora da faixa 2xx.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (HTTP %d) for %s", e.Code, e.URL)
}

type restClient struct {
	baseURL    string
	httpClient *http.Client
	authHeader string
	authValue  string
	accept     string
}

func (c *restClient) do(ctx context.Context, pathOrURL string) (*http.Response, error) {
	target := pathOrURL
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		target = c.baseURL + pathOrURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}
	if c.authValue != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}
	return resp, nil
}

func (c *restClient) getJSON(ctx context.Context, pathOrURL string, out any) (http.Header, error) {
	resp, err := c.do(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

func (c *restClient) getRaw(ctx context.Context, pathOrURL string) (string, error) {
	resp, err := c.do(ctx, pathOrURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// resolveWithHeads tenta os refs do remoto quando a API REST não devolve o SHA.
func resolveWithHeads(ctx context.Context, heads HeadResolver, ref models.RepositoryRef, token string, apiErr error) (string, error) {
	if heads == nil {
		if apiErr == nil {
			apiErr = fmt.Errorf("empty commit sha")
		}
		return "", fmt.Errorf("resolve commit for %s: %w", ref.FullName(), apiErr)
	}
	sha, err := heads.ResolveHead(ctx, ref, token)
	if err != nil {
		if apiErr != nil {
			return "", fmt.Errorf("resolve commit for %s: api: %v; remote refs: %w", ref.FullName(), apiErr, err)
		}
		return "", fmt.Errorf("resolve commit for %s: %w", ref.FullName(), err)
	}
	return sha, nil
}

// escapePath escapa cada segmento de um caminho de arquivo mantendo as barras.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
