package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordNotifier posts notices to one Discord channel through the REST API.
type DiscordNotifier struct {
	token       string
	channel     string
	session     *discordgo.Session
	personas    personaSet
	webhookID   string
	webhookTok  string
	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	botName     string
	sent        int
	lastError   string
	logger      *zap.Logger
}

// NewDiscordNotifier creates a Discord notifier.
func NewDiscordNotifier(token, channel string, logger *zap.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		token:   token,
		channel: channel,
		logger:  logger,
	}
}

func (a *DiscordNotifier) Platform() string { return "discord" }

// SetPersona registers an agent's display persona for Discord messages.
func (a *DiscordNotifier) SetPersona(agentID string, persona *AgentPersona) {
	a.personas.set(agentID, persona)
}

// SetWebhook enables persona messages through a channel webhook URL
// (https://discord.com/api/webhooks/<id>/<token>).
func (a *DiscordNotifier) SetWebhook(webhookURL string) error {
	id, tok, err := parseWebhook(webhookURL)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.webhookID, a.webhookTok = id, tok
	return nil
}

func parseWebhook(webhookURL string) (string, string, error) {
	_, rest, ok := strings.Cut(webhookURL, "/webhooks/")
	if !ok {
		return "", "", fmt.Errorf("discord webhook url %q: missing /webhooks/", webhookURL)
	}
	id, tok, ok := strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if !ok || id == "" || tok == "" || strings.Contains(tok, "/") {
		return "", "", fmt.Errorf("discord webhook url %q: want /webhooks/<id>/<token>", webhookURL)
	}
	return id, tok, nil
}

// Connect creates the session and verifies the bot token.
func (a *DiscordNotifier) Connect(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.fail(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	me, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		a.fail(fmt.Sprintf("token check: %v", err))
		return fmt.Errorf("discord user: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.connected = true
	a.connectedAt = time.Now()
	a.botName = me.Username
	a.lastError = ""
	a.mu.Unlock()

	a.logger.Info("discord notifier connected", zap.String("user", me.Username))
	return nil
}

// Notify posts the notice. With a webhook and a persona for the acting agent
// the message shows the agent's name and avatar.
func (a *DiscordNotifier) Notify(ctx context.Context, n *Notice) error {
	a.mu.RLock()
	session, hookID, hookTok := a.session, a.webhookID, a.webhookTok
	a.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("discord notifier not connected")
	}
	persona, hasPersona := a.personas.get(n.AgentID)

	var err error
	if hookID != "" && hasPersona {
		params := &discordgo.WebhookParams{
			Content:   formatText(n, "**"),
			Username:  persona.Name,
			AvatarURL: persona.IconURL,
		}
		_, err = session.WebhookExecute(hookID, hookTok, false, params, discordgo.WithContext(ctx))
	} else {
		_, err = session.ChannelMessageSend(a.channel, discordContent(n, persona), discordgo.WithContext(ctx))
	}
	if err != nil {
		a.fail(err.Error())
		return fmt.Errorf("discord send: %w", err)
	}
	a.mu.Lock()
	a.sent++
	a.mu.Unlock()
	return nil
}

// discordContent prefixes the persona name when no webhook can carry it.
func discordContent(n *Notice, persona *AgentPersona) string {
	text := formatText(n, "**")
	if persona != nil {
		text = fmt.Sprintf("**[%s]** %s", persona.Name, text)
	}
	return text
}

func (a *DiscordNotifier) fail(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
}

// Close shuts down the Discord session.
func (a *DiscordNotifier) Close() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

// Status implements Notifier.
func (a *DiscordNotifier) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "discord",
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
