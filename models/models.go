package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Platform string

const (
	PlatformGitHub    Platform = "github"
	PlatformGitLab    Platform = "gitlab"
	PlatformBitbucket Platform = "bitbucket"
)

// RepositoryRef identifica um repositório em um dos provedores suportados.
type RepositoryRef struct {
	Platform Platform `json:"platform"`
	Owner    string   `json:"owner"`
	Repo     string   `json:"repo"`
}

// FullName devolve "owner/repo".
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

type FileKind string

const (
	KindBlob FileKind = "blob"
	KindTree FileKind = "tree"
)

type RepoFile struct {
	Path      string   `json:"path"`
	Kind      FileKind `json:"type"`
	SizeBytes int64    `json:"size"`
}

type FindingType string

const (
	TypeSecret           FindingType = "secret"
	TypeVulnerability    FindingType = "vulnerability"
	TypeMisconfiguration FindingType = "misconfiguration"
	TypePattern          FindingType = "pattern"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Finding é um problema de segurança detectado em um arquivo.
type Finding struct {
	ID                 string      `json:"id"`
	Type               FindingType `json:"type"`
	Severity           Severity    `json:"severity"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	File               string      `json:"file"`
	Line               *int        `json:"line,omitempty"`
	Suggestion         string      `json:"suggestion"`
	Impact             string      `json:"impact,omitempty"`
	CWEReference       string      `json:"cwe_reference,omitempty"`
	OWASPCategory      string      `json:"owasp_category,omitempty"`
	Sanitized          bool        `json:"sanitized"`
	SensitiveDataTypes []string    `json:"sensitive_data_types,omitempty"`
}

type SecurityScore struct {
	Overall         float64 `json:"overall"`
	Secrets         float64 `json:"secrets"`
	Vulnerabilities float64 `json:"vulnerabilities"`
	Configurations  float64 `json:"configurations"`
	Patterns        float64 `json:"patterns"`
}

type ScanMetadata struct {
	FilesAnalyzed     []string          `json:"filesAnalyzed"`
	ContentHashes     map[string]string `json:"contentHashes"`
	AnalysisTimestamp time.Time         `json:"analysisTimestamp"`
	// IssuesBeforeDedup guarda a contagem original para respostas vindas do cache.
	IssuesBeforeDedup int               `json:"issuesBeforeDeduplication"`
}

// CacheEntry é imutável por (RepoHash, CommitSHA).
type CacheEntry struct {
	RepoHash      string        `json:"repo_hash"`
	CommitSHA     string        `json:"commit_sha"`
	Results       []Finding     `json:"results"`
	SecurityScore SecurityScore `json:"security_score"`
	FilesScanned  int           `json:"files_scanned"`
	ScanMetadata  ScanMetadata  `json:"scan_metadata"`
}

type RateLimitRecord struct {
	UserID       string    `json:"user_id"`
	FunctionName string    `json:"function_name"`
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start"`
}

// ScanJob é a mensagem recebida pela fila de scans.
type ScanJob struct {
	ScanID           string    `json:"scan_id"`
	UserID           string    `json:"user_id"`
	RepositoryURL    string    `json:"repository_url"`
	AccessToken      string    `json:"access_token,omitempty"`
	MessageCreatedAt time.Time `json:"message_created_at"`
}

// ScanResponse é o payload de resposta de um scan concluído.
type ScanResponse struct {
	Success                   bool          `json:"success"`
	ScanID                    string        `json:"scanId"`
	Results                   []Finding     `json:"results"`
	SecurityScore             SecurityScore `json:"securityScore"`
	FilesScanned              int           `json:"filesScanned"`
	Repository                string        `json:"repository"`
	Platform                  Platform      `json:"platform"`
	AnalysisMethod            string        `json:"analysisMethod"`
	CommitSHA                 string        `json:"commitSha"`
	ScanMetadata              ScanMetadata  `json:"scanMetadata"`
	IssuesBeforeDeduplication int           `json:"issuesBeforeDeduplication"`
	SanitizedIssues           int           `json:"sanitizedIssues"`
	Cached                    bool          `json:"cached"`
}

// ScanLimit representa o limite mensal de scans: ilimitado ou um teto fixo.
type ScanLimit struct {
	unlimited bool
	n         int
}

func Unlimited() ScanLimit { return ScanLimit{unlimited: true} }

func Limited(n int) ScanLimit {
	if n < 0 {
		n = 0
	}
	return ScanLimit{n: n}
}

func (l ScanLimit) IsUnlimited() bool { return l.unlimited }

// Max devolve o teto; ok=false quando o limite é ilimitado.
func (l ScanLimit) Max() (int, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

func (l ScanLimit) Allows(used int) bool {
	return l.unlimited || used < l.n
}

func (l ScanLimit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

func (l ScanLimit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(l.n)
}
