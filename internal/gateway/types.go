package gateway

import (
	"context"
	"sync"
	"time"
)

// Notifier delivers notices to one chat platform.
type Notifier interface {
	Platform() string
	Connect(ctx context.Context) error
	Notify(ctx context.Context, n *Notice) error
	Status() AdapterStatus
	Close() error
}

// Notice is a world happening formatted for people watching the simulation.
type Notice struct {
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	AgentID      string   `json:"agent_id,omitempty"`
	Significance int      `json:"significance"`
	Platforms    []string `json:"platforms,omitempty"`
}

// AgentPersona defines how an agent appears on a platform.
type AgentPersona struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
	Emoji   string `json:"emoji,omitempty"` // fallback if no icon_url, e.g. ":robot_face:"
}

// AdapterStatus reports a notifier's connection state.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Sent        int        `json:"sent"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}

type personaSet struct {
	mu sync.RWMutex
	m  map[string]*AgentPersona
}

func (p *personaSet) set(agentID string, persona *AgentPersona) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*AgentPersona)
	}
	p.m[agentID] = persona
}

func (p *personaSet) get(agentID string) (*AgentPersona, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	persona, ok := p.m[agentID]
	return persona, ok
}
