package git

import (
	"context"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	httpAuth "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

// RemoteHeadResolver implementa HeadResolver listando os refs anunciados pelo remoto
// com go-git (equivalente a git ls-remote), sem clonar o repositório.
type RemoteHeadResolver struct {
	// URLFor permite apontar para outro remoto; nil usa CloneURL.
	URLFor func(models.RepositoryRef) string
}

func (r *RemoteHeadResolver) ResolveHead(ctx context.Context, ref models.RepositoryRef, token string) (string, error) {
	start := time.Now()
	defer logger.Trace("ResolveHead", start)

	remoteURL := CloneURL(ref)
	if r.URLFor != nil {
		remoteURL = r.URLFor(ref)
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})

	opts := &git.ListOptions{}
	if token != "" {
		opts.Auth = &httpAuth.BasicAuth{
			Username: basicAuthUser(ref.Platform),
			Password: token,
		}
	}

	refs, err := remote.ListContext(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("ls-remote %s: %w", remoteURL, err)
	}
	return headHash(refs)
}

// headHash segue HEAD (simbólico ou não) e cai para main/master.
func headHash(refs []*plumbing.Reference) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	if head, ok := byName[plumbing.HEAD]; ok {
		switch head.Type() {
		case plumbing.HashReference:
			return head.Hash().String(), nil
		case plumbing.SymbolicReference:
			if target, ok := byName[head.Target()]; ok && target.Type() == plumbing.HashReference {
				return target.Hash().String(), nil
			}
		}
	}

	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName("main"),
		plumbing.NewBranchReferenceName("master"),
	} {
		if r, ok := byName[name]; ok && r.Type() == plumbing.HashReference {
			return r.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("no HEAD, main or master ref advertised")
}

func basicAuthUser(p models.Platform) string {
	switch p {
	case models.PlatformGitLab:
		return "oauth2"
	case models.PlatformBitbucket:
		return "x-token-auth"
	default:
		return "x-access-token"
	}
}
