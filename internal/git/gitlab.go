package git

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lockwhz/ai-scan-service/models"
)

// GitLabFetcher usa a API v4 do GitLab. Arquivos vêm como texto bruto.
type GitLabFetcher struct {
	rest  *restClient
	token string
	heads HeadResolver
}

type gitlabProject struct {
	DefaultBranch string `json:"default_branch"`
}

type gitlabCommit struct {
	ID string `json:"id"`
}

type gitlabTreeItem struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

func (f *GitLabFetcher) projectPath(ref models.RepositoryRef) string {
	return "/projects/" + url.PathEscape(ref.Owner+"/"+ref.Repo)
}

func (f *GitLabFetcher) LatestCommit(ctx context.Context, ref models.RepositoryRef) (string, error) {
	branch := "main"
	var project gitlabProject
	if _, err := f.rest.getJSON(ctx, f.projectPath(ref), &project); err == nil && project.DefaultBranch != "" {
		branch = project.DefaultBranch
	}

	var commit gitlabCommit
	_, err := f.rest.getJSON(ctx, f.projectPath(ref)+"/repository/commits/"+url.PathEscape(branch), &commit)
	if err == nil && commit.ID != "" {
		return commit.ID, nil
	}
	return resolveWithHeads(ctx, f.heads, ref, f.token, err)
}

func (f *GitLabFetcher) ListTree(ctx context.Context, ref models.RepositoryRef, sha string) ([]models.RepoFile, error) {
	var files []models.RepoFile
	page := "1"
	for i := 0; i < maxTreePages && page != ""; i++ {
		q := url.Values{}
		q.Set("recursive", "true")
		q.Set("ref", sha)
		q.Set("per_page", "100")
		q.Set("page", page)

		var items []gitlabTreeItem
		header, err := f.rest.getJSON(ctx, f.projectPath(ref)+"/repository/tree?"+q.Encode(), &items)
		if err != nil {
			return nil, fmt.Errorf("list tree page %s: %w", page, err)
		}
		for _, item := range items {
			kind := models.KindBlob
			if item.Type == "tree" {
				kind = models.KindTree
			}
			files = append(files, models.RepoFile{Path: item.Path, Kind: kind})
		}

		page = header.Get("X-Next-Page")
		if _, err := strconv.Atoi(page); err != nil {
			page = ""
		}
	}
	return files, nil
}

func (f *GitLabFetcher) FetchFile(ctx context.Context, ref models.RepositoryRef, sha, path string) (string, error) {
	target := f.projectPath(ref) + "/repository/files/" + url.PathEscape(path) + "/raw?ref=" + url.QueryEscape(sha)
	body, err := f.rest.getRaw(ctx, target)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	return body, nil
}
