package git

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lockwhz/ai-scan-service/models"
)

type hostPattern struct {
	platform models.Platform
	re       *regexp.Regexp
}

// Ordem fixa: o primeiro host que casar define a plataforma.
var hostPatterns = []hostPattern{
	{models.PlatformGitHub, regexp.MustCompile(`github\.com/([^/?#\s]+)/([^/?#\s]+)`)},
	{models.PlatformGitLab, regexp.MustCompile(`gitlab\.com/([^/?#\s]+)/([^/?#\s]+)`)},
	{models.PlatformBitbucket, regexp.MustCompile(`bitbucket\.org/([^/?#\s]+)/([^/?#\s]+)`)},
}

// DetectPlatform devolve a plataforma pelo host contido na URL.
func DetectPlatform(url string) (models.Platform, bool) {
	for _, hp := range hostPatterns {
		if strings.Contains(url, string(hp.platform)+hostSuffix(hp.platform)) {
			return hp.platform, true
		}
	}
	return "", false
}

func hostSuffix(p models.Platform) string {
	if p == models.PlatformBitbucket {
		return ".org"
	}
	return ".com"
}

// Resolve extrai plataforma, owner e repo de uma URL de repositório. Não acessa a rede.
func Resolve(url string) (models.RepositoryRef, error) {
	url = strings.TrimSpace(url)
	platform, ok := DetectPlatform(url)
	if !ok {
		return models.RepositoryRef{}, fmt.Errorf("%w: unsupported host in %q (supported: GitHub, GitLab, Bitbucket)", models.ErrInvalidURL, url)
	}

	for _, hp := range hostPatterns {
		if hp.platform != platform {
			continue
		}
		m := hp.re.FindStringSubmatch(url)
		if m == nil {
			break
		}
		owner := m[1]
		repo := strings.TrimSuffix(m[2], ".git")
		if owner == "" || repo == "" {
			break
		}
		return models.RepositoryRef{Platform: platform, Owner: owner, Repo: repo}, nil
	}
	return models.RepositoryRef{}, fmt.Errorf("%w: expected <host>/<owner>/<repo> in %q", models.ErrInvalidURL, url)
}

// CloneURL monta a URL HTTPS do remoto, usada para listar refs via go-git.
func CloneURL(ref models.RepositoryRef) string {
	return fmt.Sprintf("https://%s%s/%s/%s.git", ref.Platform, hostSuffix(ref.Platform), ref.Owner, ref.Repo)
}
