package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirmark/resume/internal/share"
)

func newShareCmd(configPath *string) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Copy the resume link to the clipboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			res, err := loadResume(cfg)
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Service.PublicURL
			}
			if url == "" {
				url = fmt.Sprintf("http://localhost:%d/", cfg.Service.Port)
			}

			// terminals have no share sheet
			result := share.Share(cmd.Context(), nil, share.NewSystemClipboard(), share.Payload{
				Title: res.Share.Title,
				Text:  res.Share.Text,
				URL:   url,
			})
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "link to share (default: service.public_url)")
	return cmd
}
