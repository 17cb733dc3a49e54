package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirmark/resume/internal/export"
	"github.com/sirmark/resume/internal/logger"
)

type exportFlags struct {
	url         string
	out         string
	browser     string
	margin      float64
	quality     float64
	scale       float64
	format      string
	orientation string
}

func newExportCmd(configPath *string) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the resume page to a PDF file",
		Long: "Export loads the page in headless Chrome with every section revealed and\n" +
			"writes a paginated PDF. Point --url at a running server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, *configPath, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "http://127.0.0.1:8080/?export=1", "page to export")
	fl.StringVarP(&f.out, "out", "o", "", "output file (default: the resume's export filename)")
	fl.StringVar(&f.browser, "browser", "", "Chrome DevTools URL; empty launches a local headless Chrome")
	fl.Float64Var(&f.margin, "margin", 0, "page margin in inches")
	fl.Float64Var(&f.quality, "quality", 0, "JPEG image quality (0-1]")
	fl.Float64Var(&f.scale, "scale", 0, "rasterization scale")
	fl.StringVar(&f.format, "format", "", "paper size: letter, legal or a4")
	fl.StringVar(&f.orientation, "orientation", "", "portrait or landscape")
	return cmd
}

func runExport(cmd *cobra.Command, configPath string, f exportFlags) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	res, err := loadResume(cfg)
	if err != nil {
		return err
	}

	opts := cfg.Export.Options(res.Export.Filename)
	fl := cmd.Flags()
	if fl.Changed("margin") {
		opts.Margin = f.margin
	}
	if fl.Changed("quality") {
		opts.ImageQuality = f.quality
	}
	if fl.Changed("scale") {
		opts.Scale = f.scale
	}
	if fl.Changed("format") {
		opts.Format = f.format
	}
	if fl.Changed("orientation") {
		opts.Orientation = f.orientation
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	browser := cfg.Export.BrowserURL
	if f.browser != "" {
		browser = f.browser
	}
	capturer := export.NewRodCapturer(browser, log)
	defer func() {
		if closeErr := capturer.Close(); closeErr != nil {
			log.Warn("Failed to close browser", logger.Error(closeErr))
		}
	}()

	ctx := cmd.Context()
	if cfg.Export.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Export.Timeout)
		defer cancel()
	}

	doc, err := export.New(capturer, log).Export(ctx, f.url, opts)
	if err != nil {
		return err
	}

	out := f.out
	if out == "" {
		out = opts.Filename
	}
	if err := os.WriteFile(out, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, len(doc))
	return nil
}
