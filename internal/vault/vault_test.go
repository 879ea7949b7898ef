package vault

import (
	"errors"
	"testing"

	"github.com/lockwhz/ai-scan-service/models"
)

func TestDefaultVaultClient(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_service")
	t.Setenv("GITLAB_TOKEN", "")

	v := &DefaultVaultClient{}
	if tok, err := v.GetPlatformToken(models.PlatformGitHub); err != nil || tok != "ghp_service" {
		t.Fatalf("github = %q, %v", tok, err)
	}
	if _, err := v.GetPlatformToken(models.PlatformGitLab); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := v.GetPlatformToken(models.Platform("svn")); err == nil || errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected unsupported platform error, got %v", err)
	}
}

func TestNoOpVaultClient(t *testing.T) {
	if _, err := (&NoOpVaultClient{}).GetPlatformToken(models.PlatformGitHub); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}
