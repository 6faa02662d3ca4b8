package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zardamhussain/outblog-crawl/crawl"
)

func newSubmitCmd(a *app) *cobra.Command {
	var (
		limit    int
		maxDepth int
		formats  []string
		include  []string
		exclude  []string
	)

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a crawl job and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := crawl.JobParameters{
				URL:          args[0],
				Limit:        limit,
				MaxDepth:     maxDepth,
				IncludePaths: include,
				ExcludePaths: exclude,
			}
			for _, f := range formats {
				params.Formats = append(params.Formats, crawl.OutputFormat(f))
			}

			job, err := a.client.Submit(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.ID, job.Status)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of pages to crawl (0 = server default)")
	cmd.Flags().IntVar(&maxDepth, "depth", 0, "maximum link depth (0 = server default)")
	cmd.Flags().StringSliceVar(&formats, "format", []string{string(crawl.FormatMarkdown)}, "output formats: markdown, html, text, links")
	cmd.Flags().StringSliceVar(&include, "include", nil, "path prefixes to include")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "path prefixes to exclude")
	return cmd
}
