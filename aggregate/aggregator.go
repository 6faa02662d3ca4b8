// Package aggregate merges streamed or paginated page deliveries into
// an ordered, duplicate-free result set.
package aggregate

import (
	"sort"
	"sync"

	"github.com/zardamhussain/outblog-crawl/crawl"
)

// Outcome reports what Accept did with a page.
type Outcome int

// Accept outcomes.
const (
	// Inserted means the page extended the contiguous accepted prefix
	// (possibly flushing previously buffered pages behind it).
	Inserted Outcome = iota

	// DuplicateIgnored means the page's sequence number was already
	// accepted or buffered and the delivery was discarded.
	DuplicateIgnored

	// OutOfOrderBuffered means the page arrived ahead of a gap and is
	// held until the gap closes.
	OutOfOrderBuffered
)

// String returns the outcome name used in logs and metrics labels.
func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case DuplicateIgnored:
		return "duplicate"
	case OutOfOrderBuffered:
		return "buffered"
	default:
		return "unknown"
	}
}

const defaultBufferCapacity = 256

// Aggregator owns every page once accepted. Delivery is at-least-once
// upstream, so duplicates across reconnects are expected and dropped
// by sequence number. Safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	jobID    string
	next     uint64 // next expected sequence number
	accepted []crawl.Page
	buffered map[uint64]crawl.Page
	capacity int
}

// New builds an Aggregator for jobID. capacity bounds the out-of-order
// buffer; zero or negative selects the default.
func New(jobID string, capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &Aggregator{
		jobID:    jobID,
		buffered: make(map[uint64]crawl.Page),
		capacity: capacity,
	}
}

// Accept takes ownership of page. A page ahead of an unresolved gap is
// buffered; once the buffer is full a further gap page fails with
// *crawl.SequenceGapError rather than letting the caller hang on a
// hole that will never close.
func (a *Aggregator) Accept(page crawl.Page) (Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case page.Seq < a.next:
		return DuplicateIgnored, nil
	case page.Seq == a.next:
		a.accepted = append(a.accepted, page)
		a.next++
		a.flushLocked()
		return Inserted, nil
	default:
		if _, ok := a.buffered[page.Seq]; ok {
			return DuplicateIgnored, nil
		}
		if len(a.buffered) >= a.capacity {
			return OutOfOrderBuffered, &crawl.SequenceGapError{
				JobID:    a.jobID,
				WantSeq:  a.next,
				Buffered: len(a.buffered),
			}
		}
		a.buffered[page.Seq] = page
		return OutOfOrderBuffered, nil
	}
}

// flushLocked drains buffered pages that have become contiguous.
func (a *Aggregator) flushLocked() {
	for {
		page, ok := a.buffered[a.next]
		if !ok {
			return
		}
		delete(a.buffered, a.next)
		a.accepted = append(a.accepted, page)
		a.next++
	}
}

// LastContiguous returns the resumption token: the highest sequence
// number of the gap-free accepted prefix, or -1 when nothing has been
// accepted. Resuming from this value re-delivers anything still
// buffered behind a gap, which the dedup path absorbs.
func (a *Aggregator) LastContiguous() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(a.next) - 1
}

// Len reports the number of accepted (contiguous) pages.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.accepted)
}

// Accepted returns a copy of the accepted pages starting at index
// from. Incremental consumers use it to observe pages flushed out of
// the gap buffer as well as directly inserted ones.
func (a *Aggregator) Accepted(from int) []crawl.Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if from >= len(a.accepted) {
		return nil
	}
	out := make([]crawl.Page, len(a.accepted)-from)
	copy(out, a.accepted[from:])
	return out
}

// BufferedCount reports pages held behind an unresolved gap.
func (a *Aggregator) BufferedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffered)
}

// Finalize builds the terminal result once the job status is known.
// Accepted pages come first in strictly increasing sequence order;
// pages still stuck behind a gap are appended in order and flag the
// result incomplete instead of being dropped silently.
func (a *Aggregator) Finalize(status crawl.JobStatus) crawl.FinalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	pages := make([]crawl.Page, len(a.accepted), len(a.accepted)+len(a.buffered))
	copy(pages, a.accepted)

	incomplete := len(a.buffered) > 0
	if incomplete {
		stuck := make([]crawl.Page, 0, len(a.buffered))
		for _, p := range a.buffered {
			stuck = append(stuck, p)
		}
		sort.Slice(stuck, func(i, j int) bool { return stuck[i].Seq < stuck[j].Seq })
		pages = append(pages, stuck...)
	}

	return crawl.FinalResult{
		JobID:      a.jobID,
		Status:     status,
		Pages:      pages,
		Incomplete: incomplete || !status.Terminal(),
	}
}
