package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
)

func TestLogClampsAndOrders(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	log := NewLog(clk, 10)
	ctx := context.Background()

	if err := log.Record(ctx, "a1", "met Bob", 42, KindLongTerm); err != nil {
		t.Fatalf("record: %v", err)
	}
	clk.Advance(time.Minute)
	if err := log.Record(ctx, "a1", "ate bread", -3, KindWorking); err != nil {
		t.Fatalf("record: %v", err)
	}

	mems, _ := log.Recent(ctx, "a1", 5)
	if len(mems) != 2 {
		t.Fatalf("got %d memories, want 2", len(mems))
	}
	if mems[0].Content != "ate bread" || mems[0].Significance != MinSignificance {
		t.Errorf("newest = %+v", mems[0])
	}
	if mems[1].Significance != MaxSignificance {
		t.Errorf("significance = %d, want clamped to %d", mems[1].Significance, MaxSignificance)
	}
}

func TestLogRejectsUnknownKind(t *testing.T) {
	log := NewLog(clock.NewManual(time.Now()), 0)
	if err := log.Record(context.Background(), "a1", "x", 5, Kind("dream")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLogSweep(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	log := NewLog(clk, 0)
	ctx := context.Background()
	log.Record(ctx, "a1", "passing thought", 2, KindWorking)
	log.Record(ctx, "a1", "wedding", 10, KindLongTerm)

	clk.Advance(12 * time.Hour)
	n, err := log.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep() = %d, %v; want 1, nil", n, err)
	}
	mems, _ := log.Recent(ctx, "a1", 5)
	if len(mems) != 1 || mems[0].Kind != KindLongTerm {
		t.Errorf("remaining = %+v", mems)
	}
}

type queue struct{ fns []func(context.Context) }

func (q *queue) Defer(fn func(ctx context.Context)) { q.fns = append(q.fns, fn) }

func TestDeferredRecordsAfterFlush(t *testing.T) {
	log := NewLog(clock.NewManual(time.Now()), 0)
	q := &queue{}
	rec := NewDeferred(q, log, nil)
	ctx := context.Background()

	if err := rec.Record(ctx, "a1", "saw a fight", 3, KindRecent); err != nil {
		t.Fatalf("record: %v", err)
	}
	if mems, _ := log.Recent(ctx, "a1", 5); len(mems) != 0 {
		t.Fatal("recorded before flush")
	}
	for _, fn := range q.fns {
		fn(ctx)
	}
	if mems, _ := log.Recent(ctx, "a1", 5); len(mems) != 1 {
		t.Fatal("expected memory after flush")
	}
}
