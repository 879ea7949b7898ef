package scan

import (
	"context"

	"github.com/lockwhz/ai-scan-service/models"
)

// Analyzer analisa o conteúdo (já sanitizado) de um arquivo e devolve os findings.
// Um erro vale apenas para aquele arquivo.
type Analyzer interface {
	Analyze(ctx context.Context, path, content string) ([]models.Finding, error)
}
