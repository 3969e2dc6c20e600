package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
)

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func() (interface{}, error) {
		agents, err := h.Repo.Agents()
		if err != nil {
			return nil, err
		}
		return clones(agents), nil
	})
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var spec world.AgentSpec
	if err := decode(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	h.write(w, r, http.StatusCreated, func(context.Context) (interface{}, error) {
		a, err := h.Spawner.Spawn(spec)
		if err != nil {
			return nil, err
		}
		return a.Clone(), nil
	})
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.read(w, r, func() (interface{}, error) {
		a, err := h.Repo.Agent(id)
		if err != nil {
			return nil, err
		}
		return a.Clone(), nil
	})
}

// agentRead checks the agent exists before running fn.
func (h *Handler) agentRead(w http.ResponseWriter, r *http.Request, fn func(id string) (interface{}, error)) {
	id := chi.URLParam(r, "id")
	h.read(w, r, func() (interface{}, error) {
		if _, err := h.Repo.Agent(id); err != nil {
			return nil, err
		}
		return fn(id)
	})
}

func (h *Handler) agentRelationships(w http.ResponseWriter, r *http.Request) {
	h.agentRead(w, r, func(id string) (interface{}, error) {
		rels, err := h.Repo.RelationshipsFrom(id)
		if err != nil {
			return nil, err
		}
		return clones(rels), nil
	})
}

// agentGoals lists goals, optionally filtered by ?status=.
func (h *Handler) agentGoals(w http.ResponseWriter, r *http.Request) {
	status := model.GoalStatus(r.URL.Query().Get("status"))
	h.agentRead(w, r, func(id string) (interface{}, error) {
		gs, err := h.Repo.Goals(store.GoalFilter{AgentID: id, Status: status})
		if err != nil {
			return nil, err
		}
		return clones(gs), nil
	})
}

func (h *Handler) agentPlan(w http.ResponseWriter, r *http.Request) {
	h.agentRead(w, r, func(id string) (interface{}, error) {
		plan, err := h.Goals.ActivePlan(id)
		if err != nil || plan == nil {
			return nil, err
		}
		return plan.Clone(), nil
	})
}

func (h *Handler) agentEvents(w http.ResponseWriter, r *http.Request) {
	status := model.LifeEventStatus(r.URL.Query().Get("status"))
	h.agentRead(w, r, func(id string) (interface{}, error) {
		evs, err := h.Repo.LifeEvents(store.LifeEventFilter{AgentID: id, Status: status})
		if err != nil {
			return nil, err
		}
		return clones(evs), nil
	})
}

// agentArcs lists the agent's arcs; ?open=true keeps unfinished ones.
func (h *Handler) agentArcs(w http.ResponseWriter, r *http.Request) {
	open := r.URL.Query().Get("open") == "true"
	h.agentRead(w, r, func(id string) (interface{}, error) {
		arcs, err := h.Repo.Arcs(store.ArcFilter{AgentID: id, OpenOnly: open})
		if err != nil {
			return nil, err
		}
		return clones(arcs), nil
	})
}

type agentFaction struct {
	Faction    *model.Faction    `json:"faction"`
	Membership *model.Membership `json:"membership"`
}

func (h *Handler) agentFactions(w http.ResponseWriter, r *http.Request) {
	h.agentRead(w, r, func(id string) (interface{}, error) {
		fs, err := h.Factions.ForAgent(id)
		if err != nil {
			return nil, err
		}
		ms, err := h.Repo.Memberships(store.MembershipFilter{AgentID: id, ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		byFaction := make(map[string]*model.Membership, len(ms))
		for _, m := range ms {
			byFaction[m.FactionID] = m
		}
		out := make([]agentFaction, 0, len(fs))
		for _, f := range fs {
			af := agentFaction{Faction: f.Clone()}
			if m := byFaction[f.ID]; m != nil {
				af.Membership = m.Clone()
			}
			out = append(out, af)
		}
		return out, nil
	})
}

func (h *Handler) agentNarrative(w http.ResponseWriter, r *http.Request) {
	h.agentRead(w, r, func(id string) (interface{}, error) {
		s, err := h.Arcs.Summary(id)
		if err != nil {
			return nil, err
		}
		return map[string]string{"agent_id": id, "summary": s}, nil
	})
}

// agentMemories lists up to ?limit= (default 20) memories.
func (h *Handler) agentMemories(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	err := h.Tx.View(r.Context(), func(context.Context) error {
		_, err := h.Repo.Agent(id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Memories == nil {
		writeJSON(w, http.StatusOK, []*memory.Memory{})
		return
	}
	mems, err := h.Memories.Recent(r.Context(), id, limit)
	if err != nil {
		writeError(w, simerr.Repository("recent memories", err))
		return
	}
	writeJSON(w, http.StatusOK, mems)
}

// agentNeighbors reads the Neo4j mirror, which lags the world by up to one
// persist pass.
func (h *Handler) agentNeighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Tx.View(r.Context(), func(context.Context) error {
		_, err := h.Repo.Agent(id)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Neighbors == nil {
		writeJSON(w, http.StatusOK, []world.Neighbor{})
		return
	}
	out, err := h.Neighbors.Neighbors(r.Context(), id)
	if err != nil {
		writeError(w, simerr.Repository("neighbors", err))
		return
	}
	if out == nil {
		out = []world.Neighbor{}
	}
	writeJSON(w, http.StatusOK, out)
}
