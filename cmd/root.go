package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockwhz/ai-scan-service/config"
	"github.com/lockwhz/ai-scan-service/internal/logger"
)

// Version pode ser definida no build via ldflags.
var Version = "dev"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scanservice",
	Short: "AI-powered security scanning for GitHub, GitLab and Bitbucket repositories",
	Long: `scanservice busca os arquivos mais sensíveis de um repositório remoto, remove
segredos do conteúdo, pede a um LLM a análise de segurança e devolve findings
deduplicados com um score por categoria.

Comandos:
  serve   API HTTP (POST /api/v1/scans, GET /api/v1/scan-usage)
  worker  consumidor de jobs de scan da fila SQS
  scan    scan pontual de um repositório pelo terminal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		opts := logger.DefaultOptions()
		opts.Env = cfg.Env
		opts.LogPath = cfg.LogPath
		opts.Level = cfg.LogLevel
		if err := logger.Init(opts); err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is ./scanservice.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scanservice version %s\n", Version)
		},
	})
}
