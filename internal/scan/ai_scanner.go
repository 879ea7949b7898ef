package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lockwhz/ai-scan-service/internal/llm"
	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

const (
	maxPromptContent = 12000
	maxAttempts      = 2

	defaultTitle       = "Security Issue"
	defaultDescription = "Security issue detected by AI analysis"
	defaultSuggestion  = "Review and implement security best practices"
	defaultImpact      = "Potential security risk identified"
)

const systemPrompt = "You are a senior application security engineer. " +
	"Analyze source code for security issues and answer with a JSON array only, no prose and no markdown."

var promptHeader = `Perform a security review of the %s file below and return ONLY a JSON array of findings.

Look for:
- hardcoded secrets and credentials (API keys, passwords, tokens, private keys, database credentials)
- injection flaws (SQL, NoSQL, command, code, LDAP)
- broken authentication or authorization, insecure direct object references
- weak cryptography, insecure randomness, weak hashing
- input validation problems (XSS, CSRF, path traversal, unsafe deserialization, file upload)
- insecure configuration (debug mode, verbose errors, insecure defaults, missing security headers)
- business logic flaws (race conditions, missing rate limiting)
- information disclosure (sensitive data in logs or error messages)

Severity:
- critical: immediate exploit risk, exposed secrets, remote code execution, auth bypass
- high: user data at risk (XSS, SQL injection, privilege escalation)
- medium: exploitable weakness (weak crypto, CSRF, information disclosure)
- low: hardening opportunity or best-practice violation

Values already replaced by [REDACTED_...] placeholders were secrets in the original file; report them as findings.

FILE: %s
CONTENT:
` + "```%s\n%s\n```" + `

Each element must have this shape:
{
  "type": "secret|vulnerability|misconfiguration|pattern",
  "severity": "critical|high|medium|low",
  "title": "short technical title",
  "description": "what the issue is, why it is dangerous and how it can be exploited",
  "line": line_number_if_known,
  "remediation": "concrete steps to fix it",
  "impact": "business and technical impact",
  "cwe_reference": "CWE id if applicable, e.g. CWE-798",
  "owasp_category": "OWASP Top 10 category if applicable, e.g. A07:2021"
}

If there are no issues return []. Return ONLY valid JSON.`

// AIScanner é o motor de análise: monta o prompt, chama o LLM com ritmo controlado,
// extrai e valida o array JSON e normaliza cada item em um Finding.
type AIScanner struct {
	client  llm.Completer
	limiter *rate.Limiter
}

// NewAIScanner cria o motor. delay é o intervalo mínimo entre chamadas ao LLM.
func NewAIScanner(client llm.Completer, delay time.Duration) *AIScanner {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &AIScanner{client: client, limiter: rate.NewLimiter(limit, 1)}
}

// Analyze nunca tenta mais de duas vezes. Resposta fora de 2xx não tem retry; JSON
// inválido tem um retry e depois ErrAnalysisParseFailed.
func (s *AIScanner) Analyze(ctx context.Context, path, content string) ([]models.Finding, error) {
	start := time.Now()
	defer logger.Trace("AnalyzeFile", start)

	prompt := BuildPrompt(path, Language(path), content)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait llm slot: %w", err)
		}

		reply, err := s.client.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", path, err)
		}

		raw, err := ParseFindings(reply)
		if err == nil {
			return NormalizeFindings(path, raw), nil
		}
		lastErr = err
		logger.Log.Warnf("Resposta do LLM inválida para %s (tentativa %d): %v", path, attempt+1, err)
	}
	return nil, fmt.Errorf("analyze %s: %w: %v", path, models.ErrAnalysisParseFailed, lastErr)
}

// BuildPrompt monta a mensagem do usuário com o conteúdo truncado.
func BuildPrompt(path, language, content string) string {
	return fmt.Sprintf(promptHeader, language, path, language, truncateRunes(content, maxPromptContent))
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

var errNoArray = errors.New("no JSON array in response")

// ParseFindings remove cercas markdown e devolve os itens do primeiro array JSON de nível
// superior que decodifica e contém objetos (ou está vazio). Colchetes em prosa antes do
// array, como "[1 issue]" ou "[1]", são pulados.
func ParseFindings(reply string) ([]any, error) {
	text := stripFences(reply)

	var (
		fallback []any
		decoded  bool
		lastErr  = errNoArray
	)
	for offset := 0; offset < len(text); {
		arr, start, ok := extractArray(text, offset)
		if !ok {
			break
		}
		offset = start + 1

		var items []any
		if err := json.Unmarshal([]byte(arr), &items); err != nil {
			lastErr = fmt.Errorf("decode array: %w", err)
			continue
		}
		if len(items) == 0 || hasObject(items) {
			return items, nil
		}
		if !decoded {
			fallback, decoded = items, true
		}
	}
	if decoded {
		return fallback, nil
	}
	return nil, lastErr
}

func hasObject(items []any) bool {
	for _, it := range items {
		if _, ok := it.(map[string]any); ok {
			return true
		}
	}
	return false
}

func stripFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// extractArray acha o próximo '[' a partir de from e o ']' correspondente, ignorando
// colchetes dentro de strings. Devolve também a posição do '['.
func extractArray(s string, from int) (string, int, bool) {
	rel := strings.IndexByte(s[from:], '[')
	if rel < 0 {
		return "", 0, false
	}
	start := from + rel

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], start, true
			}
		}
	}
	return "", start, false
}

// NormalizeFindings valida campo a campo a saída não confiável do LLM.
// Itens que não são objetos são descartados.
func NormalizeFindings(path string, items []any) []models.Finding {
	findings := make([]models.Finding, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		f := models.Finding{
			ID:            fmt.Sprintf("ai-%s-%d", path, i),
			Type:          normalizeType(stringField(m, "type")),
			Severity:      normalizeSeverity(stringField(m, "severity")),
			Title:         orDefault(stringField(m, "title"), defaultTitle),
			Description:   orDefault(stringField(m, "description"), defaultDescription),
			File:          path,
			Line:          lineField(m["line"]),
			Suggestion:    orDefault(stringField(m, "remediation", "suggestion"), defaultSuggestion),
			Impact:        orDefault(stringField(m, "impact"), defaultImpact),
			CWEReference:  stringField(m, "cwe_reference", "cweReference"),
			OWASPCategory: stringField(m, "owasp_category", "owaspCategory"),
		}
		findings = append(findings, f)
	}
	return findings
}

func normalizeType(v string) models.FindingType {
	switch t := models.FindingType(strings.ToLower(v)); t {
	case models.TypeSecret, models.TypeVulnerability, models.TypeMisconfiguration, models.TypePattern:
		return t
	}
	return models.TypePattern
}

func normalizeSeverity(v string) models.Severity {
	switch s := models.Severity(strings.ToLower(v)); s {
	case models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
		return s
	}
	return models.SeverityMedium
}

// stringField devolve o primeiro valor string não vazio entre as chaves.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func lineField(v any) *int {
	var n int
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t < 1 || t > math.MaxInt32 {
			return nil
		}
		n = int(t)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 32)
		if err != nil {
			return nil
		}
		n = int(parsed)
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
