package git

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

// GitHubFetcher usa a API REST v3 do GitHub. O conteúdo dos arquivos vem em base64.
type GitHubFetcher struct {
	rest  *restClient
	token string
	heads HeadResolver
}

type githubRepo struct {
	DefaultBranch string `json:"default_branch"`
}

type githubCommit struct {
	SHA string `json:"sha"`
}

type githubTree struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

type githubContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (f *GitHubFetcher) repoPath(ref models.RepositoryRef) string {
	return fmt.Sprintf("/repos/%s/%s", escapePath(ref.Owner), escapePath(ref.Repo))
}

func (f *GitHubFetcher) LatestCommit(ctx context.Context, ref models.RepositoryRef) (string, error) {
	branch := "main"
	var repo githubRepo
	if _, err := f.rest.getJSON(ctx, f.repoPath(ref), &repo); err == nil && repo.DefaultBranch != "" {
		branch = repo.DefaultBranch
	}

	var commit githubCommit
	_, err := f.rest.getJSON(ctx, f.repoPath(ref)+"/commits/"+escapePath(branch), &commit)
	if err == nil && commit.SHA != "" {
		return commit.SHA, nil
	}
	return resolveWithHeads(ctx, f.heads, ref, f.token, err)
}

func (f *GitHubFetcher) ListTree(ctx context.Context, ref models.RepositoryRef, sha string) ([]models.RepoFile, error) {
	var tree githubTree
	if _, err := f.rest.getJSON(ctx, f.repoPath(ref)+"/git/trees/"+escapePath(sha)+"?recursive=1", &tree); err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}
	if tree.Truncated {
		logger.Log.Warnf("Árvore de %s @ %s truncada pelo GitHub: seleção sobre listagem parcial (%d entradas)",
			ref.FullName(), sha, len(tree.Tree))
	}

	files := make([]models.RepoFile, 0, len(tree.Tree))
	for _, item := range tree.Tree {
		kind := models.KindBlob
		if item.Type != "blob" {
			kind = models.KindTree
		}
		files = append(files, models.RepoFile{Path: item.Path, Kind: kind, SizeBytes: item.Size})
	}
	return files, nil
}

func (f *GitHubFetcher) FetchFile(ctx context.Context, ref models.RepositoryRef, sha, path string) (string, error) {
	var content githubContent
	if _, err := f.rest.getJSON(ctx, f.repoPath(ref)+"/contents/"+escapePath(path)+"?ref="+escapePath(sha), &content); err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	if content.Content == "" {
		return "", nil
	}
	if content.Encoding != "" && content.Encoding != "base64" {
		return content.Content, nil
	}

	raw := strings.ReplaceAll(content.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(decoded), nil
}
