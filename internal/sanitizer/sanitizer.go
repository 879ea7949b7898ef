// Package sanitizer remove segredos e dados pessoais de textos antes que eles saiam
// do serviço: conteúdo enviado ao LLM e texto de findings devolvido ao usuário.
package sanitizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Categorias na ordem em que são aplicadas.
const (
	APIKeys      = "api_keys"
	Passwords    = "passwords"
	Tokens       = "tokens"
	Emails       = "emails"
	DatabaseURLs = "database_urls"
	PrivateKeys  = "private_keys"
)

type rule struct {
	re *regexp.Regexp
	// skip descarta um match pelo contexto em que aparece.
	skip func(text string, start int) bool
}

type category struct {
	name  string
	rules []rule
}

// As classes capturadas nunca aceitam '[', aspas ou espaço: um placeholder já
// inserido não volta a casar em uma segunda passada.
var categories = []category{
	{APIKeys, []rule{
		{re: regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|secret[_-]?key|access[_-]?key(?:[_-]?id)?|client[_-]?secret)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-/+]{16,})`)},
		{re: regexp.MustCompile(`\b(sk-(?:proj-)?[A-Za-z0-9_\-]{20,})`)},
		{re: regexp.MustCompile(`\b(AKIA[0-9A-Z]{16})\b`)},
		{re: regexp.MustCompile(`\b(AIza[0-9A-Za-z_\-]{35})`)},
	}},
	{Passwords, []rule{
		{re: regexp.MustCompile(`(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?([^\s"'\[;,]{4,})`)},
	}},
	{Tokens, []rule{
		{re: regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9_\-.=]{20,})`)},
		{re: regexp.MustCompile(`(?i)(?:auth[_-]?token|access[_-]?token|refresh[_-]?token|token)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{16,})`)},
		{re: regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{36,})`)},
		{re: regexp.MustCompile(`\b(glpat-[A-Za-z0-9_\-]{20,})`)},
		{re: regexp.MustCompile(`\b(xox[abprs]-[A-Za-z0-9\-]{10,})`)},
		{re: regexp.MustCompile(`\b(eyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,})`)},
	}},
	{Emails, []rule{
		{re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), skip: insideURL},
	}},
	{DatabaseURLs, []rule{
		{re: regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mariadb|mongodb(?:\+srv)?|redis|rediss|amqp|amqps|mssql|sqlserver)://([^:\s/@\[]*:[^@\s/\[]+)@`)},
	}},
	{PrivateKeys, []rule{
		{re: regexp.MustCompile(`-----BEGIN (?:[A-Z0-9]+ )*PRIVATE KEY-----[\s\S]*?-----END (?:[A-Z0-9]+ )*PRIVATE KEY-----`)},
	}},
}

// Sanitize devolve o texto com os segredos substituídos e as categorias encontradas,
// em ordem alfabética. Aplicar duas vezes produz o mesmo texto.
func Sanitize(text string) (string, []string) {
	if text == "" {
		return text, nil
	}

	var found []string
	for _, c := range categories {
		hit := false
		for _, r := range c.rules {
			var matched bool
			text, matched = r.apply(text, strings.ToUpper(c.name))
			hit = hit || matched
		}
		if hit {
			found = append(found, c.name)
		}
	}
	sort.Strings(found)
	return text, found
}

// SanitizeFields aplica Sanitize em cada campo e une as categorias encontradas.
func SanitizeFields(fields ...*string) []string {
	seen := map[string]struct{}{}
	for _, f := range fields {
		if f == nil {
			continue
		}
		var types []string
		*f, types = Sanitize(*f)
		for _, t := range types {
			seen[t] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r rule) apply(text, label string) (string, bool) {
	matches := r.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, false
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	hit := false
	for _, m := range matches {
		if r.skip != nil && r.skip(text, m[0]) {
			continue
		}
		start, end := m[0], m[1]
		placeholder := fmt.Sprintf("[REDACTED_%s]", label)
		if len(m) >= 4 && m[2] >= 0 {
			start, end = m[2], m[3]
			placeholder = fmt.Sprintf("[REDACTED_%s_%d_CHARS]", label, utf8.RuneCountInString(text[start:end]))
		}
		b.WriteString(text[last:start])
		b.WriteString(placeholder)
		last = end
		hit = true
	}
	if !hit {
		return text, false
	}
	b.WriteString(text[last:])
	return b.String(), true
}

// insideURL indica que o match faz parte de um token com esquema (user:pass@host),
// que é tratado pela categoria de URLs de banco.
func insideURL(text string, start int) bool {
	tokenStart := strings.LastIndexAny(text[:start], " \t\r\n\"'`<>()") + 1
	return strings.Contains(text[tokenStart:start], "://")
}
