package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zardamhussain/outblog-crawl/crawl"
)

// pageWriter emits pages as JSON lines, one document per line.
type pageWriter struct {
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
}

// newPageWriter writes to path, or stdout when path is empty.
func newPageWriter(path string) (*pageWriter, error) {
	if path == "" {
		return &pageWriter{w: os.Stdout, enc: json.NewEncoder(os.Stdout)}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &pageWriter{w: f, c: f, enc: json.NewEncoder(f)}, nil
}

func (pw *pageWriter) Write(page crawl.Page) error {
	if err := pw.enc.Encode(page); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	return nil
}

func (pw *pageWriter) WriteAll(pages []crawl.Page) error {
	for _, p := range pages {
		if err := pw.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (pw *pageWriter) Close() error {
	if pw.c == nil {
		return nil
	}
	return pw.c.Close()
}

func printSummary(w io.Writer, res *crawl.FinalResult) {
	fmt.Fprintf(w, "job %s finished: status=%s pages=%d incomplete=%v\n",
		res.JobID, res.Status, len(res.Pages), res.Incomplete)
}
