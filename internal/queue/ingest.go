// Package queue implements the two-stage pipeline between the inbound
// transport and the downstream M2M endpoint: an ingestion queue that
// decouples accept-and-acknowledge from decode work, and an outbound
// queue that retries delivery with bounded exponential backoff.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/codec"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// RawEnvelope is one undecoded payload as it arrived from the
// transport. Owned by the ingestion queue until decoded, then dropped.
type RawEnvelope struct {
	Payload    []byte
	ReceivedAt time.Time
}

// RecordSink receives successfully decoded records.
type RecordSink interface {
	Accept(r *model.Record)
}

// DeadLetter receives envelopes that failed to decode. Best effort: a
// publish failure is logged and the envelope is dropped either way.
type DeadLetter interface {
	PublishDead(ctx context.Context, payload []byte, reason string, receivedAt time.Time) error
}

// IngestStats is a point-in-time snapshot of the ingestion counters.
type IngestStats struct {
	Depth         int     `json:"depth"`
	Processed     uint64  `json:"processed"`
	Errors        uint64  `json:"errors"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	RatePerSecond float64 `json:"ratePerSecond"`
}

// IngestQueue buffers raw envelopes and decodes them in batches on a
// fixed period. Accept never blocks on decode or delivery work.
type IngestQueue struct {
	// Dead, when set, receives undecodable envelopes. Validate, when
	// set, runs after decode; a validation failure counts as a decode
	// error and discards the record. Both must be set before Run.
	Dead     DeadLetter
	Validate func(r *model.Record) error

	codec    codec.Codec
	sink     RecordSink
	interval time.Duration
	clock    Clock
	logger   *log.Logger

	mu        sync.Mutex
	buf       []RawEnvelope
	processed uint64
	errors    uint64
	startedAt time.Time
}

func NewIngestQueue(cdc codec.Codec, sink RecordSink, interval time.Duration, clock Clock, logger *log.Logger) *IngestQueue {
	if clock == nil {
		clock = SystemClock
	}
	return &IngestQueue{
		codec:     cdc,
		sink:      sink,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		startedAt: clock.Now(),
	}
}

// Accept appends one envelope and returns the resulting queue depth.
// The payload is copied; transports may reuse their buffers.
func (q *IngestQueue) Accept(payload []byte) int {
	env := RawEnvelope{
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: q.clock.Now(),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, env)
	return len(q.buf)
}

// Run drives the batch timer until ctx is cancelled. An in-flight batch
// finishes before Run returns; envelopes still buffered are discarded.
func (q *IngestQueue) Run(ctx context.Context) {
	t := time.NewTicker(q.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			q.processBatch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processBatch atomically takes the current buffer and decodes it.
// Envelopes arriving during processing land in a fresh buffer. One bad
// envelope never aborts the batch.
func (q *IngestQueue) processBatch(ctx context.Context) {
	q.mu.Lock()
	batch := q.buf
	q.buf = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, env := range batch {
		rec, err := q.codec.Decode(env.Payload)
		if err == nil && q.Validate != nil {
			if verr := q.Validate(rec); verr != nil {
				err = verr
			}
		}
		if err != nil {
			q.mu.Lock()
			q.errors++
			q.mu.Unlock()
			q.logger.Printf("ingest: dropping envelope (%d bytes): %v", len(env.Payload), err)
			if q.Dead != nil {
				if derr := q.Dead.PublishDead(ctx, env.Payload, err.Error(), env.ReceivedAt); derr != nil {
					q.logger.Printf("ingest: dlq publish failed: %v", derr)
				}
			}
			continue
		}
		q.sink.Accept(rec)
		q.mu.Lock()
		q.processed++
		q.mu.Unlock()
	}
}

func (q *IngestQueue) Stats() IngestStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	uptime := q.clock.Now().Sub(q.startedAt).Seconds()
	s := IngestStats{
		Depth:         len(q.buf),
		Processed:     q.processed,
		Errors:        q.errors,
		UptimeSeconds: uptime,
	}
	if uptime > 0 {
		s.RatePerSecond = float64(q.processed) / uptime
	}
	return s
}
