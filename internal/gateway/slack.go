package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackNotifier posts notices to one Slack channel.
type SlackNotifier struct {
	channel     string
	client      *slack.Client
	personas    personaSet
	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	botName     string
	sent        int
	lastError   string
	logger      *zap.Logger
}

// NewSlackNotifier creates a Slack notifier. botToken is the Bot User OAuth
// Token (xoxb-...); channel is the channel ID notices go to.
func NewSlackNotifier(botToken, channel string, logger *zap.Logger, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		channel: channel,
		client:  slack.New(botToken, opts...),
		logger:  logger,
	}
}

func (a *SlackNotifier) Platform() string { return "slack" }

// SetPersona registers an agent's display persona for Slack messages.
func (a *SlackNotifier) SetPersona(agentID string, persona *AgentPersona) {
	a.personas.set(agentID, persona)
}

// Connect verifies the token.
func (a *SlackNotifier) Connect(ctx context.Context) error {
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		a.fail(fmt.Sprintf("auth test: %v", err))
		return fmt.Errorf("slack auth: %w", err)
	}
	a.mu.Lock()
	a.connected = true
	a.connectedAt = time.Now()
	a.botName = resp.User
	a.lastError = ""
	a.mu.Unlock()
	a.logger.Info("slack notifier connected",
		zap.String("user", resp.User), zap.String("team", resp.Team))
	return nil
}

// Notify posts the notice with the acting agent's persona, if any.
func (a *SlackNotifier) Notify(ctx context.Context, n *Notice) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(formatText(n, "*"), false),
	}
	opts = append(opts, a.personaOpts(n.AgentID)...)

	if _, _, err := a.client.PostMessageContext(ctx, a.channel, opts...); err != nil {
		a.fail(err.Error())
		return fmt.Errorf("slack send: %w", err)
	}
	a.mu.Lock()
	a.sent++
	a.mu.Unlock()
	return nil
}

// personaOpts builds Slack message options for agent persona display.
func (a *SlackNotifier) personaOpts(agentID string) []slack.MsgOption {
	if agentID == "" {
		return nil
	}
	p, ok := a.personas.get(agentID)
	if !ok {
		return nil
	}

	opts := []slack.MsgOption{
		slack.MsgOptionUsername(p.Name),
	}
	if p.IconURL != "" {
		opts = append(opts, slack.MsgOptionIconURL(p.IconURL))
	} else if p.Emoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(p.Emoji))
	}
	return opts
}

func (a *SlackNotifier) fail(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
}

// Status implements Notifier.
func (a *SlackNotifier) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "slack",
		Connected: a.connected,
		Sent:      a.sent,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = fmt.Sprintf("bot=%s, channel=%s", a.botName, a.channel)
	}
	return s
}

// Close is a no-op; the web API client holds no connection.
func (a *SlackNotifier) Close() error {
	return nil
}
