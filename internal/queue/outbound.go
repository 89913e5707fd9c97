package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// Sender delivers one record to the downstream endpoint. A non-nil
// error means the attempt failed and the item is subject to backoff.
type Sender interface {
	Send(ctx context.Context, r *model.Record) error
}

// Archiver receives items that exhausted their retry budget. Best
// effort: an archive failure is logged, the items stay dropped.
type Archiver interface {
	Archive(ctx context.Context, items []DeadRecord) error
}

// DeadRecord is a given-up outbound item handed to the archiver.
type DeadRecord struct {
	Record    *model.Record
	Attempts  int
	CreatedAt time.Time
	DroppedAt time.Time
}

// OutboundStats is a point-in-time snapshot of the delivery counters.
type OutboundStats struct {
	Depth         int     `json:"depth"`
	Delivered     uint64  `json:"delivered"`
	GivenUp       uint64  `json:"givenUp"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	RatePerSecond float64 `json:"ratePerSecond"`
}

type outboundItem struct {
	record      *model.Record
	attempts    int
	createdAt   time.Time
	nextRetryAt time.Time
	done        bool // delivered or given up; removed after the pass
}

// OutboundQueue buffers decoded records with per-item retry state and
// attempts delivery on a fixed period. Delivery failures never escape
// the batch loop; an item is dropped only after MaxAttempts failures.
type OutboundQueue struct {
	// Archive, when set, receives given-up items. Must be set before Run.
	Archive Archiver

	sender      Sender
	interval    time.Duration
	retryBase   time.Duration
	retryCap    time.Duration
	maxAttempts int
	clock       Clock
	logger      *log.Logger

	mu        sync.Mutex
	items     []*outboundItem
	delivered uint64
	givenUp   uint64
	startedAt time.Time
}

func NewOutboundQueue(sender Sender, interval, retryBase, retryCap time.Duration, maxAttempts int, clock Clock, logger *log.Logger) *OutboundQueue {
	if clock == nil {
		clock = SystemClock
	}
	return &OutboundQueue{
		sender:      sender,
		interval:    interval,
		retryBase:   retryBase,
		retryCap:    retryCap,
		maxAttempts: maxAttempts,
		clock:       clock,
		logger:      logger,
		startedAt:   clock.Now(),
	}
}

// Accept wraps the record into a retry item eligible immediately.
// Forwarding is optional: without a sender this is a no-op.
func (q *OutboundQueue) Accept(r *model.Record) {
	if q.sender == nil {
		return
	}
	now := q.clock.Now()
	item := &outboundItem{record: r, createdAt: now, nextRetryAt: now}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Run drives the delivery timer until ctx is cancelled; the in-flight
// pass finishes first.
func (q *OutboundQueue) Run(ctx context.Context) {
	if q.sender == nil {
		return
	}
	t := time.NewTicker(q.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			q.deliverDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// deliverDue attempts delivery for every item whose retry time has
// come. Ordering across items is not guaranteed: a young item may be
// delivered while an older one still waits on backoff.
func (q *OutboundQueue) deliverDue(ctx context.Context) {
	now := q.clock.Now()

	q.mu.Lock()
	var due []*outboundItem
	for _, it := range q.items {
		if !it.nextRetryAt.After(now) {
			due = append(due, it)
		}
	}
	q.mu.Unlock()

	var dead []DeadRecord
	for _, it := range due {
		err := q.sender.Send(ctx, it.record)
		if err == nil {
			it.attempts = 0
			it.done = true
			q.mu.Lock()
			q.delivered++
			q.mu.Unlock()
			continue
		}

		it.attempts++
		if it.attempts >= q.maxAttempts {
			it.done = true
			q.mu.Lock()
			q.givenUp++
			q.mu.Unlock()
			q.logger.Printf("outbound: giving up on %s after %d attempts: %v", it.record.ISO6346, it.attempts, err)
			dead = append(dead, DeadRecord{
				Record:    it.record,
				Attempts:  it.attempts,
				CreatedAt: it.createdAt,
				DroppedAt: now,
			})
			continue
		}

		delay := q.backoff(it.attempts)
		it.nextRetryAt = now.Add(delay)
		q.logger.Printf("outbound: delivery of %s failed (attempt %d/%d), retrying in %s: %v",
			it.record.ISO6346, it.attempts, q.maxAttempts, delay, err)
	}

	q.mu.Lock()
	kept := q.items[:0]
	for _, it := range q.items {
		if !it.done {
			kept = append(kept, it)
		}
	}
	q.items = kept
	q.mu.Unlock()

	if len(dead) > 0 && q.Archive != nil {
		if err := q.Archive.Archive(ctx, dead); err != nil {
			q.logger.Printf("outbound: dead-letter archive failed: %v", err)
		}
	}
}

// backoff returns min(retryBase * 2^(attempts-1), retryCap).
func (q *OutboundQueue) backoff(attempts int) time.Duration {
	d := q.retryBase
	for i := 1; i < attempts && d < q.retryCap; i++ {
		d *= 2
	}
	if d > q.retryCap {
		d = q.retryCap
	}
	return d
}

func (q *OutboundQueue) Stats() OutboundStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	uptime := q.clock.Now().Sub(q.startedAt).Seconds()
	s := OutboundStats{
		Depth:         len(q.items),
		Delivered:     q.delivered,
		GivenUp:       q.givenUp,
		UptimeSeconds: uptime,
	}
	if uptime > 0 {
		s.RatePerSecond = float64(q.delivered) / uptime
	}
	return s
}
