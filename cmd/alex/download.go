package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/spf13/cobra"
)

func newDownloadCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "download <work-id>",
		Short: "Download the full text of a work (pdf or grobid-xml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := openalex.ShortID(args[0])
			contentFormat := client.ContentFormat(format)

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := a.client.DownloadContent(cmd.Context(), id, contentFormat, w)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("work", id).
				Str("format", format).
				Int64("bytes", n).
				Msg("Download complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(client.ContentPDF), fmt.Sprintf("%s or %s", client.ContentPDF, client.ContentGrobidXML))
	cmd.Flags().StringVarP(&output, "output", "O", "", "write to file instead of stdout")
	return cmd
}
