package scan

import (
	"sort"
	"strings"

	"github.com/lockwhz/ai-scan-service/models"
)

const (
	DefaultMaxFiles    = 25
	DefaultMaxFileSize = 500_000
)

var sensitiveKeywords = []string{"config", "env", "secret", "key", "auth", "security", "password", "token"}

type SelectOptions struct {
	MaxFiles    int
	MaxFileSize int64
}

func DefaultSelectOptions() SelectOptions {
	return SelectOptions{MaxFiles: DefaultMaxFiles, MaxFileSize: DefaultMaxFileSize}
}

// SensitivityScore conta quantas palavras sensíveis aparecem no caminho em minúsculas.
func SensitivityScore(p string) int {
	lower := strings.ToLower(p)
	score := 0
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}

// SelectFiles filtra, ordena por sensibilidade (desc) e caminho (asc) e corta no orçamento.
// O resultado não depende da ordem de entrada.
func SelectFiles(files []models.RepoFile, opts SelectOptions) []models.RepoFile {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	type ranked struct {
		file  models.RepoFile
		score int
	}
	var eligible []ranked
	for _, f := range files {
		if f.Kind != models.KindBlob || f.SizeBytes >= opts.MaxFileSize {
			continue
		}
		if !IsSourceFile(f.Path) || IsExcludedPath(f.Path) {
			continue
		}
		eligible = append(eligible, ranked{file: f, score: SensitivityScore(f.Path)})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].file.Path < eligible[j].file.Path
	})

	if len(eligible) > opts.MaxFiles {
		eligible = eligible[:opts.MaxFiles]
	}
	out := make([]models.RepoFile, len(eligible))
	for i, r := range eligible {
		out[i] = r.file
	}
	return out
}
