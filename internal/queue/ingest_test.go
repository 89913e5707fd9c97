package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/codec"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

// fakeClock drives virtual time through the queue loops.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 7, 30, 22, 11, 17, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type collectSink struct {
	records []*model.Record
}

func (s *collectSink) Accept(r *model.Record) { s.records = append(s.records, r) }

type collectDead struct {
	reasons []string
}

func (d *collectDead) PublishDead(_ context.Context, payload []byte, reason string, _ time.Time) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testRecord(iso string) *model.Record {
	return &model.Record{
		MSISDN:      "393600504920",
		ISO6346:     iso,
		Time:        "300725 221117.8",
		RSSI:        21,
		CGI:         "999-01-1-31D41",
		BLEMode:     1,
		BatterySOC:  94,
		AccX:        -974.07,
		AccY:        -25.127,
		AccZ:        -45.6744,
		Temperature: 18.32,
		Humidity:    69,
		Pressure:    1012.5043,
		Door:        "D",
		GNSS:        1,
		Latitude:    31.89,
		Longitude:   28.7,
		Altitude:    38.1,
		Speed:       27.3,
		Heading:     125.31,
		NSat:        6,
		HDOP:        1.8,
	}
}

func encodeRecord(t *testing.T, r *model.Record) []byte {
	t.Helper()
	c := &codec.StructZlib{MaxPayload: codec.DefaultMaxPayload}
	data, err := c.Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestIngestBatchIsolation(t *testing.T) {
	clock := newFakeClock()
	sink := &collectSink{}
	dead := &collectDead{}
	cdc := &codec.StructZlib{MaxPayload: codec.DefaultMaxPayload}

	q := NewIngestQueue(cdc, sink, 5*time.Second, clock, testLogger())
	q.Dead = dead

	// Three valid envelopes with one corrupt envelope in the middle.
	q.Accept(encodeRecord(t, testRecord("LMCU0000001")))
	q.Accept(encodeRecord(t, testRecord("LMCU0000002")))
	q.Accept([]byte("definitely not zlib"))
	q.Accept(encodeRecord(t, testRecord("LMCU0000003")))

	if depth := q.Stats().Depth; depth != 4 {
		t.Fatalf("depth before batch: got %d, want 4", depth)
	}

	q.processBatch(context.Background())

	if len(sink.records) != 3 {
		t.Fatalf("decoded %d records, want 3", len(sink.records))
	}
	s := q.Stats()
	if s.Processed != 3 {
		t.Errorf("processed: got %d, want 3", s.Processed)
	}
	if s.Errors != 1 {
		t.Errorf("errors: got %d, want 1", s.Errors)
	}
	if s.Depth != 0 {
		t.Errorf("depth after batch: got %d, want 0", s.Depth)
	}
	if len(dead.reasons) != 1 {
		t.Errorf("dlq publishes: got %d, want 1", len(dead.reasons))
	}
}

func TestIngestAcceptDuringBatchGoesToFreshBuffer(t *testing.T) {
	clock := newFakeClock()
	cdc := &codec.StructZlib{MaxPayload: codec.DefaultMaxPayload}

	var q *IngestQueue
	sink := &hookSink{hook: func(r *model.Record) {
		// A new arrival while the batch is processing must land in the
		// next batch, not the one in flight.
		q.Accept(encodeRecord(t, testRecord("LMCU0000099")))
	}}
	q = NewIngestQueue(cdc, sink, 5*time.Second, clock, testLogger())

	q.Accept(encodeRecord(t, testRecord("LMCU0000001")))
	q.processBatch(context.Background())

	if sink.count != 1 {
		t.Fatalf("batch processed %d records, want 1", sink.count)
	}
	if depth := q.Stats().Depth; depth != 1 {
		t.Fatalf("fresh buffer depth: got %d, want 1", depth)
	}

	q.processBatch(context.Background())
	if sink.count != 2 {
		t.Fatalf("second batch total: got %d, want 2", sink.count)
	}
}

type hookSink struct {
	hook  func(*model.Record)
	count int
}

func (s *hookSink) Accept(r *model.Record) {
	s.count++
	if s.count == 1 && s.hook != nil {
		s.hook(r)
	}
}

func TestIngestValidationFailureCountsAsError(t *testing.T) {
	clock := newFakeClock()
	sink := &collectSink{}
	cdc := &codec.StructZlib{MaxPayload: codec.DefaultMaxPayload}

	q := NewIngestQueue(cdc, sink, 5*time.Second, clock, testLogger())
	q.Validate = func(r *model.Record) error {
		if r.ISO6346 == "LMCU0000002" {
			return errors.New("rejected by schema")
		}
		return nil
	}

	q.Accept(encodeRecord(t, testRecord("LMCU0000001")))
	q.Accept(encodeRecord(t, testRecord("LMCU0000002")))
	q.processBatch(context.Background())

	if len(sink.records) != 1 {
		t.Fatalf("forwarded %d records, want 1", len(sink.records))
	}
	if s := q.Stats(); s.Errors != 1 || s.Processed != 1 {
		t.Fatalf("stats: got processed=%d errors=%d, want 1/1", s.Processed, s.Errors)
	}
}

func TestIngestRate(t *testing.T) {
	clock := newFakeClock()
	sink := &collectSink{}
	cdc := &codec.StructZlib{MaxPayload: codec.DefaultMaxPayload}
	q := NewIngestQueue(cdc, sink, 5*time.Second, clock, testLogger())

	for i := 0; i < 10; i++ {
		q.Accept(encodeRecord(t, testRecord("LMCU0000001")))
	}
	clock.advance(5 * time.Second)
	q.processBatch(context.Background())

	s := q.Stats()
	if s.UptimeSeconds != 5 {
		t.Fatalf("uptime: got %v, want 5", s.UptimeSeconds)
	}
	if s.RatePerSecond != 2 {
		t.Fatalf("rate: got %v, want 2", s.RatePerSecond)
	}
}
