package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zardamhussain/outblog-crawl/crawl"
	"github.com/zardamhussain/outblog-crawl/stream"
)

func newWatchCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream a job's pages as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := newPageWriter(output)
			if err != nil {
				return err
			}
			defer pw.Close() //nolint:errcheck

			sess, err := a.client.Watch(args[0], func(page crawl.Page) {
				if werr := pw.Write(page); werr != nil {
					a.logger.Warn("dropping page output", zap.Error(werr))
				}
			})
			if err != nil {
				return err
			}

			var res crawl.FinalResult
			done := make(chan struct{})
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				defer close(done)
				r, rerr := sess.Run(gctx)
				res = r
				return rerr
			})
			g.Go(func() error {
				// Ctrl-C closes the session promptly instead of
				// waiting for the next frame.
				select {
				case <-gctx.Done():
					return sess.Close()
				case <-done:
					return nil
				}
			})

			err = g.Wait()
			if errors.Is(err, stream.ErrSessionClosed) {
				err = nil
			}
			printSummary(cmd.ErrOrStderr(), &res)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write pages as JSON lines to this file (default stdout)")
	return cmd
}
