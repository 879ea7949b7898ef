package scan

import (
	"path"
	"strings"
)

// sourceExtensions é a allow-list de extensões analisadas, com a linguagem informada ao LLM.
var sourceExtensions = map[string]string{
	".js":     "javascript",
	".ts":     "typescript",
	".jsx":    "javascript",
	".tsx":    "typescript",
	".py":     "python",
	".java":   "java",
	".php":    "php",
	".rb":     "ruby",
	".go":     "go",
	".rs":     "rust",
	".cpp":    "cpp",
	".c":      "c",
	".h":      "c",
	".cs":     "csharp",
	".swift":  "swift",
	".kt":     "kotlin",
	".scala":  "scala",
	".json":   "json",
	".yaml":   "yaml",
	".yml":    "yaml",
	".env":    "environment",
	".config": "configuration",
}

// Diretórios de dependências e artefatos gerados, nunca enviados ao LLM.
var excludedDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"node_modules":  {},
	"vendor":        {},
	"venv":          {},
	".venv":         {},
	"__pycache__":   {},
	".mypy_cache":   {},
	".pytest_cache": {},
	"dist":          {},
	"build":         {},
	"coverage":      {},
}

func extension(p string) string {
	return strings.ToLower(path.Ext(p))
}

// IsSourceFile indica se a extensão do caminho está na allow-list.
func IsSourceFile(p string) bool {
	_, ok := sourceExtensions[extension(p)]
	return ok
}

// Language devolve a linguagem usada no prompt; "text" quando desconhecida.
func Language(p string) string {
	if lang, ok := sourceExtensions[extension(p)]; ok {
		return lang
	}
	return "text"
}

// IsExcludedPath indica se algum diretório do caminho é de dependências ou build.
func IsExcludedPath(p string) bool {
	parts := strings.Split(p, "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := excludedDirs[strings.ToLower(dir)]; ok {
			return true
		}
	}
	return false
}
