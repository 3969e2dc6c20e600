package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"go.uber.org/zap"
)

// Sender delivers a notice; *Gateway implements it.
type Sender interface {
	Notify(ctx context.Context, n *Notice) error
}

// BroadcastRecord tracks a sent notice for history.
type BroadcastRecord struct {
	Notice *Notice   `json:"notice"`
	SentAt time.Time `json:"sent_at"`
	Failed bool      `json:"failed,omitempty"`
}

var noticeTitles = map[events.Type]string{
	events.TypeSystem:     "World",
	events.TypeAction:     "Action",
	events.TypeLifeEvent:  "Life event",
	events.TypeFaction:    "Factions",
	events.TypeNarrative:  "Story",
	events.TypeGoal:       "Goals",
	events.TypeResolution: "Resolution",
}

// Broadcaster is an events.Publisher that forwards significant world events
// to the chat platforms.
type Broadcaster struct {
	sender          Sender
	minSignificance int
	timeout         time.Duration
	clk             clock.Clock
	historyLimit    int
	mu              sync.Mutex
	history         []BroadcastRecord
	logger          *zap.Logger
}

// NewBroadcaster forwards events whose significance is at least minSignificance.
func NewBroadcaster(sender Sender, minSignificance int, clk clock.Clock, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		sender:          sender,
		minSignificance: minSignificance,
		timeout:         5 * time.Second,
		clk:             clk,
		historyLimit:    100,
		logger:          logger,
	}
}

// NoticeFor formats a world event for chat.
func NoticeFor(ev *events.WorldEvent) *Notice {
	title, ok := noticeTitles[ev.Type]
	if !ok {
		title = string(ev.Type)
	}
	n := &Notice{
		Type:         string(ev.Type),
		Title:        title,
		Content:      ev.Summary,
		Significance: ev.Significance,
	}
	if len(ev.ActorIDs) > 0 {
		n.AgentID = ev.ActorIDs[0]
	}
	return n
}

// Publish implements events.Publisher.
func (b *Broadcaster) Publish(ctx context.Context, ev *events.WorldEvent) {
	if ev.Significance < b.minSignificance {
		return
	}
	n := NoticeFor(ev)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	err := b.sender.Notify(ctx, n)
	if err != nil {
		b.logger.Warn("broadcast world event",
			zap.String("id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, BroadcastRecord{Notice: n, SentAt: b.clk.Now(), Failed: err != nil})
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
}

// History returns up to limit recent records, oldest first.
func (b *Broadcaster) History(limit int) []BroadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	return append([]BroadcastRecord(nil), b.history[len(b.history)-limit:]...)
}

func formatText(n *Notice, bold string) string {
	return fmt.Sprintf("%s%s%s (significance %d)\n%s", bold, n.Title, bold, n.Significance, n.Content)
}
