package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/nuka-society/internal/clock"
	"github.com/nidhogg/nuka-society/internal/events"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	platform   string
	connectErr error
	notifyErr  error
	got        []*Notice
}

func (f *fakeNotifier) Platform() string              { return f.platform }
func (f *fakeNotifier) Connect(context.Context) error { return f.connectErr }
func (f *fakeNotifier) Close() error                  { return nil }
func (f *fakeNotifier) Status() AdapterStatus {
	return AdapterStatus{Platform: f.platform, Sent: len(f.got)}
}
func (f *fakeNotifier) Notify(_ context.Context, n *Notice) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.got = append(f.got, n)
	return nil
}

func TestGatewayConnectDropsFailedPlatforms(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	good := &fakeNotifier{platform: "slack"}
	bad := &fakeNotifier{platform: "discord", connectErr: errors.New("bad token")}
	gw.Register(good)
	gw.Register(bad)

	if err := gw.ConnectAll(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if got := gw.Platforms(); len(got) != 1 || got[0] != "slack" {
		t.Fatalf("platforms = %v", got)
	}
	if err := gw.Notify(context.Background(), &Notice{Title: "x"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(good.got) != 1 || len(bad.got) != 0 {
		t.Errorf("good=%d bad=%d", len(good.got), len(bad.got))
	}
}

func TestGatewayNotifyTargetsPlatforms(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	s := &fakeNotifier{platform: "slack"}
	d := &fakeNotifier{platform: "discord", notifyErr: errors.New("rate limited")}
	gw.Register(s)
	gw.Register(d)

	if err := gw.Notify(context.Background(), &Notice{Platforms: []string{"slack"}}); err != nil {
		t.Fatalf("targeted notify: %v", err)
	}
	if err := gw.Notify(context.Background(), &Notice{}); err == nil {
		t.Error("expected failure from discord")
	}
	if len(s.got) != 2 {
		t.Errorf("slack got %d notices", len(s.got))
	}
	st := gw.Status()
	if len(st) != 2 || st[0].Platform != "discord" || st[1].Sent != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestBroadcasterFiltersBySignificance(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	n := &fakeNotifier{platform: "slack"}
	b := NewBroadcaster(n, 7, clk, zap.NewNop())

	b.Publish(context.Background(), events.New(clk, events.TypeAction, "Ada ate lunch", 2, "ada"))
	b.Publish(context.Background(), events.New(clk, events.TypeLifeEvent, "Ada and Bo married", 9, "ada", "bo"))

	if len(n.got) != 1 {
		t.Fatalf("forwarded %d notices, want 1", len(n.got))
	}
	got := n.got[0]
	if got.Title != "Life event" || got.AgentID != "ada" || got.Content != "Ada and Bo married" {
		t.Errorf("notice = %+v", got)
	}
	h := b.History(0)
	if len(h) != 1 || h[0].Failed || !h[0].SentAt.Equal(clk.Now()) {
		t.Errorf("history = %+v", h)
	}

	n.notifyErr = errors.New("down")
	b.Publish(context.Background(), events.New(clk, events.TypeFaction, "The Guild was founded", 8, "ada"))
	if h := b.History(1); len(h) != 1 || !h[0].Failed {
		t.Errorf("failed send not recorded: %+v", h)
	}
}

func TestSlackNotifier(t *testing.T) {
	var mu sync.Mutex
	var posted []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/auth.test"):
			w.Write([]byte(`{"ok":true,"user":"nuka","team":"society","user_id":"U1","team_id":"T1"}`))
		case strings.HasSuffix(r.URL.Path, "/chat.postMessage"):
			r.ParseForm()
			mu.Lock()
			posted = append(posted, map[string]string{
				"channel":    r.FormValue("channel"),
				"text":       r.FormValue("text"),
				"username":   r.FormValue("username"),
				"icon_emoji": r.FormValue("icon_emoji"),
			})
			mu.Unlock()
			w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000100"}`))
		default:
			w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
		}
	}))
	defer srv.Close()

	sn := NewSlackNotifier("xoxb-test", "C1", zap.NewNop(), slack.OptionAPIURL(srv.URL+"/"))
	if err := sn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sn.SetPersona("ada", &AgentPersona{Name: "Ada", Emoji: ":sparkles:"})

	err := sn.Notify(context.Background(), &Notice{Title: "Life event", Content: "Ada and Bo married", AgentID: "ada", Significance: 9})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(posted) != 1 {
		t.Fatalf("%d posts", len(posted))
	}
	p := posted[0]
	if p["channel"] != "C1" || p["username"] != "Ada" || p["icon_emoji"] != ":sparkles:" {
		t.Errorf("post = %v", p)
	}
	if !strings.Contains(p["text"], "*Life event*") || !strings.Contains(p["text"], "Ada and Bo married") {
		t.Errorf("text = %q", p["text"])
	}
	if st := sn.Status(); !st.Connected || st.Sent != 1 || !strings.Contains(st.Details, "bot=nuka") {
		t.Errorf("status = %+v", st)
	}
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		url     string
		id, tok string
		ok      bool
	}{
		{"https://discord.com/api/webhooks/123/abc", "123", "abc", true},
		{"https://discord.com/api/webhooks/123/abc/", "123", "abc", true},
		{"https://discord.com/api/webhooks/123", "", "", false},
		{"https://example.com/hook", "", "", false},
	}
	for _, tt := range tests {
		id, tok, err := parseWebhook(tt.url)
		if (err == nil) != tt.ok || id != tt.id || tok != tt.tok {
			t.Errorf("parseWebhook(%q) = %q, %q, %v", tt.url, id, tok, err)
		}
	}
}

func TestDiscordContent(t *testing.T) {
	n := &Notice{Title: "Story", Content: "A new story begins", Significance: 7}
	if got := discordContent(n, nil); got != "**Story** (significance 7)\nA new story begins" {
		t.Errorf("plain = %q", got)
	}
	if got := discordContent(n, &AgentPersona{Name: "Ada"}); !strings.HasPrefix(got, "**[Ada]** **Story**") {
		t.Errorf("persona = %q", got)
	}
	if err := NewDiscordNotifier("t", "c", zap.NewNop()).Notify(context.Background(), n); err == nil {
		t.Error("notify before connect should fail")
	}
}
