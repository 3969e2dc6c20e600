// Package memory records what agents remember about the world.
package memory

import (
	"context"
	"time"
)

// Kind is how long a memory is meant to last.
type Kind string

const (
	KindWorking  Kind = "working"
	KindRecent   Kind = "recent"
	KindLongTerm Kind = "longterm"
)

const (
	MinSignificance = 1
	MaxSignificance = 10
)

// Memory is a single remembered happening.
type Memory struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Content      string    `json:"content"`
	Significance int       `json:"significance"`
	Kind         Kind      `json:"kind"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recorder stores agent memories.
type Recorder interface {
	Record(ctx context.Context, agentID, content string, significance int, kind Kind) error
}

// ClampSignificance keeps significance inside [1,10].
func ClampSignificance(s int) int {
	if s < MinSignificance {
		return MinSignificance
	}
	if s > MaxSignificance {
		return MaxSignificance
	}
	return s
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindWorking, KindRecent, KindLongTerm:
		return true
	}
	return false
}

// Retention is how long a memory of this kind survives a sweep.
// Long-term memories are never swept.
func (k Kind) Retention() time.Duration {
	switch k {
	case KindWorking:
		return 6 * time.Hour
	case KindRecent:
		return 7 * 24 * time.Hour
	}
	return 0
}
