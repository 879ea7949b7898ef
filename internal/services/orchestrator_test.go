package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lockwhz/ai-scan-service/internal/cache"
	"github.com/lockwhz/ai-scan-service/internal/git"
	"github.com/lockwhz/ai-scan-service/internal/ratelimit"
	"github.com/lockwhz/ai-scan-service/internal/scan"
	"github.com/lockwhz/ai-scan-service/models"
)

/* ============================== Fakes ============================== */

type fakeFetcher struct {
	sha       string
	commitErr error
	tree      []models.RepoFile
	files     map[string]string
	fetched   []string
}

func (f *fakeFetcher) LatestCommit(context.Context, models.RepositoryRef) (string, error) {
	return f.sha, f.commitErr
}

func (f *fakeFetcher) ListTree(context.Context, models.RepositoryRef, string) ([]models.RepoFile, error) {
	return f.tree, nil
}

func (f *fakeFetcher) FetchFile(_ context.Context, _ models.RepositoryRef, _ string, path string) (string, error) {
	f.fetched = append(f.fetched, path)
	content, ok := f.files[path]
	if !ok {
		return "", &git.StatusError{URL: path, Code: 404}
	}
	return content, nil
}

type fakeFactory struct {
	fetcher   *fakeFetcher
	lastToken string
}

func (f *fakeFactory) For(_ models.Platform, token string) (git.RepositoryFetcher, error) {
	f.lastToken = token
	return f.fetcher, nil
}

// fileLLM responde por arquivo, em sequência; sem roteiro devolve [].
type fileLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   map[string]int
	prompts []string
}

func newFileLLM(replies map[string][]string) *fileLLM {
	return &fileLLM{replies: replies, calls: map[string]int{}}
}

func (l *fileLLM) Complete(_ context.Context, _, user string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, user)

	file := ""
	if i := strings.Index(user, "FILE: "); i >= 0 {
		file = user[i+len("FILE: "):]
		file = file[:strings.IndexByte(file, '\n')]
	}
	n := l.calls[file]
	l.calls[file]++
	if script := l.replies[file]; n < len(script) {
		return script[n], nil
	}
	return "[]", nil
}

func (l *fileLLM) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

type memCacheStore struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
}

func (m *memCacheStore) GetCacheEntry(_ context.Context, h, sha string) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[h+"@"+sha]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memCacheStore) UpsertCacheEntry(_ context.Context, e models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.RepoHash+"@"+e.CommitSHA] = e
	return nil
}

type memRateStore struct {
	mu   sync.Mutex
	rows []models.RateLimitRecord
}

func (m *memRateStore) WindowUsage(_ context.Context, user, fn string, since time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int
	var oldest time.Time
	for _, r := range m.rows {
		if r.UserID == user && r.FunctionName == fn && !r.WindowStart.Before(since) {
			sum += r.RequestCount
			if oldest.IsZero() || r.WindowStart.Before(oldest) {
				oldest = r.WindowStart
			}
		}
	}
	return sum, oldest, nil
}

func (m *memRateStore) InsertRateLimit(_ context.Context, r models.RateLimitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

type fakeVerifier map[string]string

func (v fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", models.ErrUnauthenticated
}

type fakeVault struct{ token string }

func (v fakeVault) GetPlatformToken(models.Platform) (string, error) { return v.token, nil }

/* ============================== Setup ============================== */

const (
	widgetsURL = "https://github.com/acme/widgets"
	envFile    = "API_KEY=abcdef0123456789abcd\nDEBUG=true\n"
	envFinding = `[{"type":"secret","severity":"critical","title":"Hardcoded API key","description":"API key committed in config/.env","line":1,"remediation":"Rotate the key and load it from a secret manager"}]`
)

type harness struct {
	orch     *Orchestrator
	fetcher  *fakeFetcher
	factory  *fakeFactory
	llm      *fileLLM
	rates    *memRateStore
	cacheMem *memCacheStore
}

func newHarness(t *testing.T, replies map[string][]string, limit int) *harness {
	t.Helper()
	fetcher := &fakeFetcher{
		sha: "c0ffee",
		tree: []models.RepoFile{
			{Path: "config", Kind: models.KindTree},
			{Path: "src/index.js", Kind: models.KindBlob, SizeBytes: 300},
			{Path: "node_modules/x.js", Kind: models.KindBlob, SizeBytes: 10},
			{Path: "config/.env", Kind: models.KindBlob, SizeBytes: 100},
		},
		files: map[string]string{
			"config/.env":  envFile,
			"src/index.js": "console.log('hello')\n",
		},
	}
	h := &harness{
		fetcher:  fetcher,
		factory:  &fakeFactory{fetcher: fetcher},
		llm:      newFileLLM(replies),
		rates:    &memRateStore{},
		cacheMem: &memCacheStore{entries: map[string]models.CacheEntry{}},
	}
	h.orch = NewOrchestrator(Deps{
		Verifier: fakeVerifier{"good-token": "user-1"},
		Limiter:  ratelimit.New(h.rates, limit, time.Hour, "github-scanner"),
		Cache:    cache.New(h.cacheMem),
		Fetchers: h.factory,
		Analyzer: scan.NewAIScanner(h.llm, 0),
	})
	return h
}

/* ============================== Testes ============================= */

func TestScan_EndToEnd(t *testing.T) {
	h := newHarness(t, map[string][]string{"config/.env": {envFinding}}, 5)

	resp, err := h.orch.Scan(context.Background(), "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Success || resp.Cached || resp.AnalysisMethod != MethodAI {
		t.Errorf("unexpected response header: %+v", resp)
	}
	if resp.Repository != "acme/widgets" || resp.Platform != models.PlatformGitHub || resp.CommitSHA != "c0ffee" {
		t.Errorf("unexpected identity: %+v", resp)
	}
	if resp.FilesScanned != 2 {
		t.Errorf("filesScanned = %d, want 2", resp.FilesScanned)
	}
	if got := resp.ScanMetadata.FilesAnalyzed; !reflect.DeepEqual(got, []string{"config/.env", "src/index.js"}) {
		t.Errorf("filesAnalyzed = %v", got)
	}
	if len(resp.ScanMetadata.ContentHashes) != 2 {
		t.Errorf("expected 2 content hashes, got %v", resp.ScanMetadata.ContentHashes)
	}
	for _, p := range h.fetcher.fetched {
		if strings.HasPrefix(p, "node_modules/") {
			t.Errorf("vendored file fetched: %s", p)
		}
	}

	if len(resp.Results) != 1 || resp.Results[0].Type != models.TypeSecret || resp.Results[0].File != "config/.env" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if resp.SecurityScore.Secrets >= 100 || resp.SecurityScore.Overall >= 100 {
		t.Errorf("expected penalized score, got %+v", resp.SecurityScore)
	}
	if resp.IssuesBeforeDeduplication != 1 {
		t.Errorf("issuesBeforeDeduplication = %d", resp.IssuesBeforeDeduplication)
	}

	for _, p := range h.llm.prompts {
		if strings.Contains(p, "abcdef0123456789abcd") {
			t.Fatal("raw secret sent to the LLM")
		}
	}
	if len(h.rates.rows) != 1 || h.rates.rows[0].UserID != "user-1" {
		t.Errorf("expected one rate-limit row, got %+v", h.rates.rows)
	}
	if len(h.cacheMem.entries) != 1 {
		t.Errorf("expected cache entry, got %d", len(h.cacheMem.entries))
	}
}

func TestScan_SecondScanServedFromCache(t *testing.T) {
	h := newHarness(t, map[string][]string{"config/.env": {envFinding}}, 5)
	ctx := context.Background()

	first, err := h.orch.Scan(ctx, "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	callsAfterFirst := h.llm.total()

	second, err := h.orch.Scan(ctx, "good-token", widgetsURL+".git", "")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if !second.Cached || second.AnalysisMethod != MethodAICached {
		t.Errorf("expected cached response, got %+v", second)
	}
	if !reflect.DeepEqual(first.Results, second.Results) || first.SecurityScore != second.SecurityScore {
		t.Error("cached results differ from the original scan")
	}
	if h.llm.total() != callsAfterFirst {
		t.Errorf("cache hit must not call the LLM (%d → %d)", callsAfterFirst, h.llm.total())
	}
	if len(h.rates.rows) != 2 {
		t.Errorf("cache hits still consume quota: got %d rows", len(h.rates.rows))
	}

	h.fetcher.sha = "deadbeef"
	third, err := h.orch.Scan(ctx, "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("third scan: %v", err)
	}
	if third.Cached {
		t.Error("new commit must force a fresh scan")
	}
}

func TestScan_CachedResponseKeepsPreDedupCount(t *testing.T) {
	item := strings.TrimSuffix(strings.TrimPrefix(envFinding, "["), "]")
	duplicated := "[" + item + "," + item + "]"
	h := newHarness(t, map[string][]string{"config/.env": {duplicated}}, 5)
	ctx := context.Background()

	first, err := h.orch.Scan(ctx, "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if first.IssuesBeforeDeduplication != 2 || len(first.Results) != 1 {
		t.Fatalf("expected 2 issues deduplicated to 1, got %d/%d", first.IssuesBeforeDeduplication, len(first.Results))
	}

	second, err := h.orch.Scan(ctx, "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if !second.Cached {
		t.Fatal("expected cache hit")
	}
	if second.IssuesBeforeDeduplication != first.IssuesBeforeDeduplication {
		t.Errorf("issuesBeforeDeduplication = %d on cache hit, want %d",
			second.IssuesBeforeDeduplication, first.IssuesBeforeDeduplication)
	}
	if second.SanitizedIssues != first.SanitizedIssues {
		t.Errorf("sanitizedIssues = %d on cache hit, want %d", second.SanitizedIssues, first.SanitizedIssues)
	}
}

func TestScan_RetriesMalformedLLMOutput(t *testing.T) {
	h := newHarness(t, map[string][]string{"config/.env": {"I found these issues: {oops", envFinding}}, 5)

	resp, err := h.orch.Scan(context.Background(), "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "Hardcoded API key" {
		t.Fatalf("expected retried findings, got %+v", resp.Results)
	}
	if h.llm.calls["config/.env"] != 2 {
		t.Errorf("expected 2 calls for config/.env, got %d", h.llm.calls["config/.env"])
	}
}

func TestScan_RateLimited(t *testing.T) {
	h := newHarness(t, nil, 1)
	ctx := context.Background()

	if _, err := h.orch.Scan(ctx, "good-token", widgetsURL, ""); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	_, err := h.orch.Scan(ctx, "good-token", widgetsURL, "")
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if rle.Decision.Remaining != 0 || rle.Decision.Limit != 1 || rle.Decision.ResetAt.IsZero() {
		t.Errorf("unexpected decision: %+v", rle.Decision)
	}
}

func TestScan_Failures(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		h := newHarness(t, nil, 5)
		_, err := h.orch.Scan(context.Background(), "bad-token", widgetsURL, "")
		if !errors.Is(err, models.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if len(h.rates.rows) != 0 {
			t.Error("failed auth must not consume quota")
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		h := newHarness(t, nil, 5)
		_, err := h.orch.Scan(context.Background(), "good-token", "https://example.com/acme/widgets", "")
		if !errors.Is(err, models.ErrInvalidURL) {
			t.Fatalf("expected ErrInvalidURL, got %v", err)
		}
	})

	t.Run("commit unavailable", func(t *testing.T) {
		h := newHarness(t, nil, 5)
		h.fetcher.commitErr = errors.New("404")
		_, err := h.orch.Scan(context.Background(), "good-token", widgetsURL, "")
		if !errors.Is(err, models.ErrRepositoryUnavailable) {
			t.Fatalf("expected ErrRepositoryUnavailable, got %v", err)
		}
	})
}

func TestScan_FileFetchFailureIsSkipped(t *testing.T) {
	h := newHarness(t, map[string][]string{"config/.env": {envFinding}}, 5)
	delete(h.fetcher.files, "src/index.js")

	resp, err := h.orch.Scan(context.Background(), "good-token", widgetsURL, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FilesScanned != 1 || len(resp.Results) != 1 {
		t.Errorf("filesScanned=%d results=%d", resp.FilesScanned, len(resp.Results))
	}
}

func TestScan_TokenSelection(t *testing.T) {
	h := newHarness(t, nil, 5)
	h.orch.deps.Vault = fakeVault{token: "service-token"}
	ctx := context.Background()

	if _, err := h.orch.ScanForUser(ctx, "user-1", widgetsURL, "user-token"); err != nil {
		t.Fatal(err)
	}
	if h.factory.lastToken != "user-token" {
		t.Errorf("request token must win, got %q", h.factory.lastToken)
	}

	h.fetcher.sha = "other"
	if _, err := h.orch.ScanForUser(ctx, "user-1", widgetsURL, ""); err != nil {
		t.Fatal(err)
	}
	if h.factory.lastToken != "service-token" {
		t.Errorf("expected vault token, got %q", h.factory.lastToken)
	}
}

func TestScan_WithoutCacheAndLimiter(t *testing.T) {
	h := newHarness(t, nil, 5)
	orch := NewOrchestrator(Deps{Fetchers: h.factory, Analyzer: scan.NewAIScanner(h.llm, 0)})

	resp, err := orch.ScanForUser(context.Background(), "cli", widgetsURL, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Cached || resp.Results == nil {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.SecurityScore.Overall != 100 {
		t.Errorf("expected clean score, got %+v", resp.SecurityScore)
	}
}
