package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/lockwhz/ai-scan-service/internal/logger"
)

// SecretsManager define a interface para recuperar segredos.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
}

// DefaultSecretsManager é uma implementação que lê segredos das variáveis de ambiente.
type DefaultSecretsManager struct{}

func (s *DefaultSecretsManager) GetSecret(_ context.Context, secretName string) (string, error) {
	secret := os.Getenv(secretName)
	if secret == "" {
		return "", fmt.Errorf("segredo %s não encontrado", secretName)
	}
	return secret, nil
}

// SecretsAPI é o subconjunto do client do Secrets Manager usado aqui.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager lê segredos do AWS Secrets Manager.
type AWSSecretsManager struct {
	client SecretsAPI
}

func NewAWSSecretsManager(cfg aws.Config) *AWSSecretsManager {
	return &AWSSecretsManager{client: secretsmanager.NewFromConfig(cfg)}
}

func NewAWSSecretsManagerWithClient(client SecretsAPI) *AWSSecretsManager {
	return &AWSSecretsManager{client: client}
}

func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	start := time.Now()
	defer logger.Trace("GetSecret", start)

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretName)})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretName, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("segredo %s vazio", secretName)
	}
	return *out.SecretString, nil
}

// Field extrai uma chave de um segredo JSON (ex.: {"password": "..."}). Segredos em texto
// puro são devolvidos inteiros.
func Field(raw, field string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw, nil
	}
	v, ok := doc[field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("campo %s ausente no segredo", field)
	}
	return v, nil
}
