package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/zardamhussain/outblog-crawl/aggregate"
	"github.com/zardamhussain/outblog-crawl/crawl"
	"github.com/zardamhussain/outblog-crawl/stream"
)

// pagesResponse is the wire shape of the paginated fallback endpoint.
type pagesResponse struct {
	Pages   []crawl.Page `json:"pages"`
	HasMore bool         `json:"has_more"`
}

// Pages fetches one batch of results with seq greater than since.
// since = -1 requests delivery from the beginning.
func (c *Client) Pages(ctx context.Context, jobID string, since int64) ([]crawl.Page, bool, error) {
	if jobID == "" {
		return nil, false, &crawl.ValidationError{Field: "job_id", Reason: "must not be empty"}
	}
	var out pagesResponse
	err := c.do(ctx, "pages", func(ctx context.Context) error {
		path := fmt.Sprintf("v1/crawl/%s/pages?since=%d", url.PathEscape(jobID), since)
		resp, err := c.tr.Send(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		out = pagesResponse{}
		return decodeInto(resp.Body, &out)
	})
	if err != nil {
		return nil, false, fmt.Errorf("fetch pages: %w", err)
	}
	return out.Pages, out.HasMore, nil
}

// WaitForCompletion blocks until the job reaches a terminal status,
// polling on the configured interval. Transient poll failures are
// retried transparently; the configured Timeout bounds the total wait
// because it can span many retried calls. On completion the page set
// is collected through the paginated fallback and returned ordered and
// deduplicated. A Failed status yields the partial result together
// with *crawl.CrawlError.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string) (*crawl.FinalResult, error) {
	if jobID == "" {
		return nil, &crawl.ValidationError{Field: "job_id", Reason: "must not be empty"}
	}

	start := c.clock.Now()
	var deadline time.Time
	if c.cfg.Timeout > 0 {
		deadline = start.Add(c.cfg.Timeout)
	}

	lastStatus := crawl.JobStatusQueued
	for {
		job, err := c.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		lastStatus = job.Status

		if job.Status.Terminal() {
			res, err := c.collect(ctx, job)
			if err != nil {
				return res, err
			}
			if job.Status == crawl.JobStatusFailed {
				return res, &crawl.CrawlError{JobID: jobID, Message: job.ErrorText}
			}
			return res, nil
		}

		if !deadline.IsZero() && !c.clock.Now().Before(deadline) {
			return nil, &crawl.WaitTimeoutError{
				JobID:      jobID,
				LastStatus: lastStatus,
				Waited:     c.clock.Now().Sub(start),
			}
		}

		c.logger.Debug("job not terminal yet, sleeping",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)),
		)
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// collect drains the paginated endpoint into an aggregator and builds
// the final result. Overlapping batches across requests are absorbed
// by the dedup path.
func (c *Client) collect(ctx context.Context, job *crawl.Job) (*crawl.FinalResult, error) {
	agg := aggregate.New(job.ID, c.cfg.BufferCapacity)
	for {
		pages, more, err := c.Pages(ctx, job.ID, agg.LastContiguous())
		if err != nil {
			res := agg.Finalize(job.Status)
			res.Incomplete = true
			return &res, err
		}
		for _, p := range pages {
			if _, aerr := agg.Accept(p); aerr != nil {
				res := agg.Finalize(job.Status)
				return &res, aerr
			}
		}
		// An empty batch with has_more set would loop forever; treat
		// it as the end of the stream.
		if !more || len(pages) == 0 {
			break
		}
	}
	res := agg.Finalize(job.Status)
	return &res, nil
}

// Watch opens a streaming session for the job. Only one session per
// job may be active on a client; the slot frees when the session's Run
// returns.
func (c *Client) Watch(jobID string, onPage func(crawl.Page)) (*stream.Session, error) {
	if jobID == "" {
		return nil, &crawl.ValidationError{Field: "job_id", Reason: "must not be empty"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, active := c.streams[jobID]; active {
		return nil, ErrStreamActive
	}

	sess := stream.New(c.tr, c.policy, stream.Config{
		JobID:          jobID,
		BufferCapacity: c.cfg.BufferCapacity,
		OnPage:         onPage,
		Logger:         c.logger,
	})
	sess.OnDone(func() {
		c.mu.Lock()
		delete(c.streams, jobID)
		c.mu.Unlock()
	})
	c.streams[jobID] = sess
	return sess, nil
}

// StreamToCompletion is the streaming counterpart of
// WaitForCompletion: it opens a session, forwards each page to onPage
// as it becomes contiguous, and returns the final result.
func (c *Client) StreamToCompletion(ctx context.Context, jobID string, onPage func(crawl.Page)) (*crawl.FinalResult, error) {
	sess, err := c.Watch(jobID, onPage)
	if err != nil {
		return nil, err
	}
	res, err := sess.Run(ctx)
	return &res, err
}
