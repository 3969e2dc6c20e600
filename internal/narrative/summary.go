package narrative

import (
	"fmt"
	"strings"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/store"
)

// Summary is a short digest of the agent's stories, open ones first.
func (e *Engine) Summary(agentID string) (string, error) {
	a, err := e.repo.Agent(agentID)
	if err != nil {
		return "", err
	}
	arcs, err := e.repo.Arcs(store.ArcFilter{AgentID: agentID})
	if err != nil {
		return "", err
	}

	var open, closed []*model.NarrativeArc
	for _, arc := range arcs {
		switch {
		case arc.Open():
			open = append(open, arc)
		case arc.Status == model.ArcResolution:
			closed = append(closed, arc)
		}
	}
	if len(open) == 0 && len(closed) == 0 {
		return fmt.Sprintf("%s has no stories yet.", a.Name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s is part of %d unfolding %s.", a.Name, len(open), plural(len(open), "story", "stories"))
	for _, arc := range open {
		fmt.Fprintf(&b, "\n- %s (%s, %s)", arc.Title, arc.Theme, model.StatusForAct(arc.CurrentAct))
		if cur := arc.Current(); cur != nil && len(cur.KeyMoments) > 0 {
			fmt.Fprintf(&b, ": %s", cur.KeyMoments[len(cur.KeyMoments)-1])
		}
	}
	if len(closed) > 0 {
		fmt.Fprintf(&b, "\nPast stories:")
		for _, arc := range closed {
			fmt.Fprintf(&b, "\n- %s", arc.Title)
			if arc.Resolution != "" {
				fmt.Fprintf(&b, ", ended with: %s", arc.Resolution)
			}
		}
	}
	return b.String(), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
