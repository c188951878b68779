// Package outcome accounts for events discarded before they reach the transport.
package outcome

import (
	"sort"
	"sync"
)

// Discard reasons.
const (
	ReasonBeforeSend     = "before_send"
	ReasonEventProcessor = "event_processor"
	ReasonSampleRate     = "sample_rate"
	ReasonQueueOverflow  = "queue_overflow"
	ReasonNetworkError   = "network_error"
	ReasonSendError      = "send_error"
)

// Data categories.
const (
	CategoryError       = "error"
	CategoryTransaction = "transaction"
	CategoryDefault     = "default"
	CategoryUserReport  = "user_report"
)

// Key identifies an outcome bucket for aggregation.
type Key struct {
	Reason   string
	Category string
}

// Outcome is a count of events dropped for one reason/category pair.
type Outcome struct {
	Reason   string `json:"reason"`
	Category string `json:"category"`
	Quantity int64  `json:"quantity"`
}

func (o Outcome) key() Key {
	return Key{Reason: o.Reason, Category: o.Category}
}

// ClientReport is the payload of a client_report envelope item.
type ClientReport struct {
	Timestamp       float64   `json:"timestamp"`
	DiscardedEvents []Outcome `json:"discarded_events"`
}

// Merge sums quantities of a and b per (reason, category). Neither input is
// modified. The result is sorted by reason then category, so merges of equal
// multisets compare equal regardless of call order. Zero-quantity buckets are
// dropped.
func Merge(a, b []Outcome) []Outcome {
	totals := make(map[Key]int64, len(a)+len(b))
	for _, o := range a {
		totals[o.key()] += o.Quantity
	}
	for _, o := range b {
		totals[o.key()] += o.Quantity
	}

	merged := make([]Outcome, 0, len(totals))
	for k, q := range totals {
		if q == 0 {
			continue
		}
		merged = append(merged, Outcome{Reason: k.Reason, Category: k.Category, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Reason != merged[j].Reason {
			return merged[i].Reason < merged[j].Reason
		}
		return merged[i].Category < merged[j].Category
	})
	return merged
}

// Total returns the summed quantity across all outcomes.
func Total(outcomes []Outcome) int64 {
	var n int64
	for _, o := range outcomes {
		n += o.Quantity
	}
	return n
}

// Recorder collects discards between send attempts. Record may be called from
// any goroutine; Drain hands everything recorded so far to the next attempt.
type Recorder struct {
	mu      sync.Mutex
	pending map[Key]int64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{pending: make(map[Key]int64)}
}

// Record adds quantity discards for the given reason and category.
func (r *Recorder) Record(reason, category string, quantity int64) {
	if quantity <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[Key{Reason: reason, Category: category}] += quantity
}

// Drain returns everything recorded since the previous drain and resets the recorder.
func (r *Recorder) Drain() []Outcome {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[Key]int64)
	r.mu.Unlock()

	outcomes := make([]Outcome, 0, len(pending))
	for k, q := range pending {
		outcomes = append(outcomes, Outcome{Reason: k.Reason, Category: k.Category, Quantity: q})
	}
	return Merge(nil, outcomes)
}

// Len returns the number of distinct pending buckets.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
