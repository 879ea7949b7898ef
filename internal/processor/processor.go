// Package processor deduplica findings, sanitiza o texto devolvido pelo LLM e calcula o score.
package processor

import (
	"math"

	"github.com/lockwhz/ai-scan-service/internal/sanitizer"
	"github.com/lockwhz/ai-scan-service/models"
)

var categoryBase = map[models.FindingType]float64{
	models.TypeSecret:           30,
	models.TypeVulnerability:    25,
	models.TypeMisconfiguration: 20,
	models.TypePattern:          15,
}

var severityWeight = map[models.Severity]float64{
	models.SeverityCritical: 25,
	models.SeverityHigh:     15,
	models.SeverityMedium:   8,
	models.SeverityLow:      3,
}

const (
	minScore        = 10
	overallDampener = 0.8
)

// Result é a saída do processamento de um conjunto de findings.
type Result struct {
	Findings        []models.Finding
	Score           models.SecurityScore
	BeforeDedup     int
	SanitizedIssues int
}

// Process deduplica, sanitiza e pontua. A entrada não é modificada.
func Process(findings []models.Finding) Result {
	unique := Deduplicate(findings)

	sanitized := 0
	for i := range unique {
		if SanitizeFinding(&unique[i]) {
			sanitized++
		}
	}

	return Result{
		Findings:        unique,
		Score:           CalculateSecurityScore(unique),
		BeforeDedup:     len(findings),
		SanitizedIssues: sanitized,
	}
}

type dedupKey struct {
	typ   models.FindingType
	title string
	file  string
}

// Deduplicate mantém a primeira ocorrência de cada (type, title, file), preservando a ordem.
func Deduplicate(findings []models.Finding) []models.Finding {
	seen := make(map[dedupKey]struct{}, len(findings))
	out := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		k := dedupKey{f.Type, f.Title, f.File}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// SanitizeFinding redige description, suggestion e impact. Devolve true se algo foi redigido.
func SanitizeFinding(f *models.Finding) bool {
	types := sanitizer.SanitizeFields(&f.Description, &f.Suggestion, &f.Impact)
	if len(types) == 0 {
		return false
	}
	f.Sanitized = true
	f.SensitiveDataTypes = types
	return true
}

// CalculateSecurityScore usa penalidade logarítmica por categoria e soma de pesos por
// severidade no geral. Todos os valores ficam em [10, 100].
func CalculateSecurityScore(findings []models.Finding) models.SecurityScore {
	counts := make(map[models.FindingType]int, len(categoryBase))
	total := 0.0
	for _, f := range findings {
		counts[f.Type]++
		total += severityWeight[f.Severity]
	}

	category := func(t models.FindingType) float64 {
		return math.Round(math.Max(minScore, 100-categoryBase[t]*math.Log1p(float64(counts[t]))))
	}

	return models.SecurityScore{
		Overall:         math.Round(math.Max(minScore, 100-overallDampener*total)),
		Secrets:         category(models.TypeSecret),
		Vulnerabilities: category(models.TypeVulnerability),
		Configurations:  category(models.TypeMisconfiguration),
		Patterns:        category(models.TypePattern),
	}
}

// CountBySeverity devolve severidade → quantidade.
func CountBySeverity(findings []models.Finding) map[models.Severity]int {
	tally := make(map[models.Severity]int)
	for _, f := range findings {
		tally[f.Severity]++
	}
	return tally
}
