package git

import (
	"context"
	"fmt"

	"github.com/lockwhz/ai-scan-service/models"
)

// BitbucketFetcher usa a API 2.0 do Bitbucket Cloud.
type BitbucketFetcher struct {
	rest  *restClient
	token string
	heads HeadResolver
}

type bitbucketRepo struct {
	MainBranch *struct {
		Name string `json:"name"`
	} `json:"mainbranch"`
}

type bitbucketBranch struct {
	Target struct {
		Hash string `json:"hash"`
	} `json:"target"`
}

type bitbucketSrcPage struct {
	Values []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	} `json:"values"`
	Next string `json:"next"`
}

func (f *BitbucketFetcher) repoPath(ref models.RepositoryRef) string {
	return fmt.Sprintf("/repositories/%s/%s", escapePath(ref.Owner), escapePath(ref.Repo))
}

func (f *BitbucketFetcher) LatestCommit(ctx context.Context, ref models.RepositoryRef) (string, error) {
	branch := "main"
	var repo bitbucketRepo
	if _, err := f.rest.getJSON(ctx, f.repoPath(ref), &repo); err == nil && repo.MainBranch != nil && repo.MainBranch.Name != "" {
		branch = repo.MainBranch.Name
	}

	var b bitbucketBranch
	_, err := f.rest.getJSON(ctx, f.repoPath(ref)+"/refs/branches/"+escapePath(branch), &b)
	if err == nil && b.Target.Hash != "" {
		return b.Target.Hash, nil
	}
	return resolveWithHeads(ctx, f.heads, ref, f.token, err)
}

func (f *BitbucketFetcher) ListTree(ctx context.Context, ref models.RepositoryRef, sha string) ([]models.RepoFile, error) {
	var files []models.RepoFile
	next := f.repoPath(ref) + "/src/" + escapePath(sha) + "/?max_depth=20&pagelen=100"
	for i := 0; i < maxTreePages && next != ""; i++ {
		var page bitbucketSrcPage
		if _, err := f.rest.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("list tree: %w", err)
		}
		for _, item := range page.Values {
			kind := models.KindBlob
			if item.Type == "commit_directory" {
				kind = models.KindTree
			}
			files = append(files, models.RepoFile{Path: item.Path, Kind: kind, SizeBytes: item.Size})
		}
		next = page.Next
	}
	return files, nil
}

func (f *BitbucketFetcher) FetchFile(ctx context.Context, ref models.RepositoryRef, sha, path string) (string, error) {
	body, err := f.rest.getRaw(ctx, f.repoPath(ref)+"/src/"+escapePath(sha)+"/"+escapePath(path))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	return body, nil
}
