//go:build integration

package events

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestStreamPublisher(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}

	if _, err := NewStreamPublisher(ctx, "not a url", zap.NewNop()); err == nil {
		t.Error("bad url accepted")
	}
	p, err := NewStreamPublisher(ctx, "redis://"+endpoint, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer p.Close()

	clk := clock.NewManual(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	for _, summary := range []string{"Ada woke up", "Ada and Bo became friends", "The Guild was founded"} {
		p.Publish(ctx, New(clk, TypeLifeEvent, summary, 5, "ada"))
		clk.Advance(time.Minute)
	}

	got, err := p.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Summary != "Ada and Bo became friends" || got[1].Summary != "The Guild was founded" {
		t.Fatalf("recent = %+v", got)
	}
	if got[1].Type != TypeLifeEvent || len(got[1].ActorIDs) != 1 {
		t.Errorf("event = %+v", got[1])
	}
}
