package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Serviço
	HTTPAddr string `mapstructure:"http_addr"`
	Env      string `mapstructure:"app_env"`
	LogPath  string `mapstructure:"log_path"`
	LogLevel string `mapstructure:"log_level"`

	// Fila
	SQSQueueURL string `mapstructure:"sqs_queue_url"` // URL da fila SQS.
	AWSRegion   string `mapstructure:"aws_region"`
	EnableSQS   bool   `mapstructure:"enable_sqs"` // Habilita consumo de mensagens da SQS.
	NumWorkers  int    `mapstructure:"num_workers"`

	// Banco
	PGHost     string `mapstructure:"pg_host"`
	PGPort     string `mapstructure:"pg_port"`
	PGName     string `mapstructure:"pg_name"`
	PGUser     string `mapstructure:"pg_user"`
	PGPassword string `mapstructure:"pg_password"`

	// Segredos
	EnableSecrets  bool   `mapstructure:"enable_secrets_manager"` // Sem ele, os *_secret_id são nomes de variáveis de ambiente.
	DBSecretID     string `mapstructure:"db_secret_id"`
	OpenAISecretID string `mapstructure:"openai_secret_id"`

	// LLM
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	LLMBaseURL   string        `mapstructure:"llm_base_url"`
	LLMModel     string        `mapstructure:"llm_model"`
	LLMMaxTokens int           `mapstructure:"llm_max_tokens"`
	LLMTimeout   time.Duration `mapstructure:"llm_timeout"`
	LLMCallDelay time.Duration `mapstructure:"llm_call_delay"`

	// Provedores Git
	GitHubAPIURL    string        `mapstructure:"github_api_url"`
	GitLabAPIURL    string        `mapstructure:"gitlab_api_url"`
	BitbucketAPIURL string        `mapstructure:"bitbucket_api_url"`
	GitHTTPTimeout  time.Duration `mapstructure:"git_http_timeout"`
	EnableVault     bool          `mapstructure:"enable_vault"` // Habilita tokens de servidor para repositórios privados.

	// Autenticação
	AuthMode       string `mapstructure:"auth_mode"` // jwt | remote
	AuthJWTSecret  string `mapstructure:"auth_jwt_secret"`
	IdentityURL    string `mapstructure:"identity_url"`
	IdentityAPIKey string `mapstructure:"identity_api_key"`

	// Limites
	RateLimitMaxRequests int           `mapstructure:"rate_limit_max_requests"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`
	RateLimitFunction    string        `mapstructure:"rate_limit_function"`
	MaxFilesPerScan      int           `mapstructure:"max_files_per_scan"`
	MaxFileSizeBytes     int64         `mapstructure:"max_file_size_bytes"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:             ":8080",
		Env:                  "production",
		LogPath:              "logs/app.log",
		LogLevel:             "info",
		AWSRegion:            "us-east-1",
		NumWorkers:           5,
		PGPort:               "5432",
		LLMBaseURL:           "https://api.openai.com/v1",
		LLMModel:             "gpt-4o-mini",
		LLMMaxTokens:         4000,
		LLMTimeout:           90 * time.Second,
		LLMCallDelay:         100 * time.Millisecond,
		GitHubAPIURL:         "https://api.github.com",
		GitLabAPIURL:         "https://gitlab.com/api/v4",
		BitbucketAPIURL:      "https://api.bitbucket.org/2.0",
		GitHTTPTimeout:       30 * time.Second,
		AuthMode:             "jwt",
		RateLimitMaxRequests: 5,
		RateLimitWindow:      time.Hour,
		RateLimitFunction:    "github-scanner",
		MaxFilesPerScan:      25,
		MaxFileSizeBytes:     500_000,
	}
}

// Load carrega a configuração com a precedência: defaults < arquivo scanservice.yaml < variáveis de ambiente.
func Load() (*Config, error) {
	return LoadFromFile("")
}

func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	defaults := map[string]any{
		"http_addr":               d.HTTPAddr,
		"app_env":                 d.Env,
		"log_path":                d.LogPath,
		"log_level":               d.LogLevel,
		"sqs_queue_url":           "",
		"aws_region":              d.AWSRegion,
		"enable_sqs":              false,
		"num_workers":             d.NumWorkers,
		"pg_host":                 "",
		"pg_port":                 d.PGPort,
		"pg_name":                 "",
		"pg_user":                 "",
		"pg_password":             "",
		"enable_secrets_manager":  false,
		"db_secret_id":            "",
		"openai_secret_id":        "",
		"openai_api_key":          "",
		"llm_base_url":            d.LLMBaseURL,
		"llm_model":               d.LLMModel,
		"llm_max_tokens":          d.LLMMaxTokens,
		"llm_timeout":             d.LLMTimeout,
		"llm_call_delay":          d.LLMCallDelay,
		"github_api_url":          d.GitHubAPIURL,
		"gitlab_api_url":          d.GitLabAPIURL,
		"bitbucket_api_url":       d.BitbucketAPIURL,
		"git_http_timeout":        d.GitHTTPTimeout,
		"enable_vault":            false,
		"auth_mode":               d.AuthMode,
		"auth_jwt_secret":         "",
		"identity_url":            "",
		"identity_api_key":        "",
		"rate_limit_max_requests": d.RateLimitMaxRequests,
		"rate_limit_window":       d.RateLimitWindow,
		"rate_limit_function":     d.RateLimitFunction,
		"max_files_per_scan":      d.MaxFilesPerScan,
		"max_file_size_bytes":     d.MaxFileSizeBytes,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigName("scanservice")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scanservice")
	}

	// PG_HOST, SQS_QUEUE_URL, OPENAI_API_KEY ... sem prefixo, como no deploy atual.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.AuthMode {
	case "jwt", "remote":
	default:
		return fmt.Errorf("invalid auth_mode: %s (must be jwt or remote)", c.AuthMode)
	}
	if c.RateLimitMaxRequests <= 0 {
		return fmt.Errorf("rate_limit_max_requests must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive")
	}
	if c.MaxFilesPerScan <= 0 {
		return fmt.Errorf("max_files_per_scan must be positive")
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("max_file_size_bytes must be positive")
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be positive")
	}
	if c.EnableSQS && c.SQSQueueURL == "" {
		return fmt.Errorf("sqs_queue_url is required when enable_sqs is set")
	}
	return nil
}

// PostgresConnString monta a string de conexão do lib/pq.
func (c Config) PostgresConnString() string {
	// Exemplo: "host=localhost port=5432 dbname=mydb user=myuser password=mypass sslmode=disable"
	return "host=" + c.PGHost + " port=" + c.PGPort + " dbname=" + c.PGName + " user=" + c.PGUser + " password=" + c.PGPassword + " sslmode=disable"
}

// HasDatabase indica se há configuração mínima para abrir o banco.
func (c Config) HasDatabase() bool {
	return c.PGHost != "" && c.PGName != ""
}
