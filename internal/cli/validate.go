package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirmark/resume/internal/resume"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [resume.yaml]",
		Short: "Check the configuration and resume content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var res *resume.Resume
			if len(args) == 1 {
				res, err = resume.Load(args[0])
			} else {
				res, err = loadResume(cfg)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d skills, %d schools, %d positions, export as %s\n",
				res.Name, len(res.Skills), len(res.Education), len(res.Experience),
				cfg.Export.Options(res.Export.Filename).Filename)
			return nil
		},
	}
}
