package vault

import (
	"errors"
	"fmt"
	"os"

	"github.com/lockwhz/ai-scan-service/models"
)

// ErrNoCredentials indica que não há token de serviço para a plataforma.
var ErrNoCredentials = errors.New("no platform credentials")

// VaultClient fornece o token de serviço usado quando a requisição não traz um próprio.
type VaultClient interface {
	GetPlatformToken(platform models.Platform) (string, error)
}

var tokenEnv = map[models.Platform]string{
	models.PlatformGitHub:    "GITHUB_TOKEN",
	models.PlatformGitLab:    "GITLAB_TOKEN",
	models.PlatformBitbucket: "BITBUCKET_TOKEN",
}

// DefaultVaultClient lê os tokens das variáveis de ambiente.
type DefaultVaultClient struct{}

func (v *DefaultVaultClient) GetPlatformToken(platform models.Platform) (string, error) {
	name, ok := tokenEnv[platform]
	if !ok {
		return "", fmt.Errorf("plataforma não suportada: %s", platform)
	}
	token := os.Getenv(name)
	if token == "" {
		return "", fmt.Errorf("%w: %s não definido", ErrNoCredentials, name)
	}
	return token, nil
}

// NoOpVaultClient nunca tem credenciais: só repositórios públicos.
type NoOpVaultClient struct{}

func (v *NoOpVaultClient) GetPlatformToken(models.Platform) (string, error) {
	return "", ErrNoCredentials
}
