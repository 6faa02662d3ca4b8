package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zardamhussain/outblog-crawl/crawl"
)

func newWaitCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Block until a crawl job finishes, then print its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.WaitForCompletion(cmd.Context(), args[0])
			if err != nil {
				// A failed job still carries its partial pages.
				var crawlErr *crawl.CrawlError
				if res == nil || !errors.As(err, &crawlErr) {
					return err
				}
			}

			pw, werr := newPageWriter(output)
			if werr != nil {
				return werr
			}
			defer pw.Close() //nolint:errcheck

			if werr := pw.WriteAll(res.Pages); werr != nil {
				return werr
			}
			printSummary(cmd.ErrOrStderr(), res)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write pages as JSON lines to this file (default stdout)")
	return cmd
}
