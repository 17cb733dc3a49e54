// Package cli wires the resume commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirmark/resume/internal/config"
	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/resume"
)

const defaultConfigPath = "config.yml"

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree. Running it without a subcommand serves
// the site.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "resume",
		Short:        "Personal resume site with reveal tracking, PDF export and sharing",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.Path(defaultConfigPath), "path to the YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newShareCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
}

// loadResume reads the configured content file, or the built-in resume.
func loadResume(cfg *config.Config) (*resume.Resume, error) {
	if cfg.Resume.Path == "" {
		return resume.Default()
	}
	if _, err := os.Stat(cfg.Resume.Path); err != nil {
		return nil, fmt.Errorf("resume content: %w", err)
	}
	return resume.Load(cfg.Resume.Path)
}
