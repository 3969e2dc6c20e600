package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/store"
)

// listFactions lists factions; ?all=true includes disbanded ones.
func (h *Handler) listFactions(w http.ResponseWriter, r *http.Request) {
	live := r.URL.Query().Get("all") != "true"
	h.read(w, r, func() (interface{}, error) {
		fs, err := h.Repo.Factions(store.FactionFilter{Live: live})
		if err != nil {
			return nil, err
		}
		return clones(fs), nil
	})
}

type createFactionRequest struct {
	FounderID string   `json:"founder_id"`
	Name      string   `json:"name"`
	Beliefs   []string `json:"beliefs"`
	Goals     []string `json:"goals"`
	Location  string   `json:"location"`
}

func (h *Handler) createFaction(w http.ResponseWriter, r *http.Request) {
	var req createFactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.write(w, r, http.StatusCreated, func(ctx context.Context) (interface{}, error) {
		f, err := h.Factions.CreateFaction(ctx, req.FounderID, req.Name, req.Beliefs, req.Goals, req.Location)
		if err != nil {
			return nil, err
		}
		return f.Clone(), nil
	})
}

type factionDetail struct {
	Faction       *model.Faction               `json:"faction"`
	Members       []*model.Membership          `json:"members"`
	Relationships []*model.FactionRelationship `json:"relationships"`
}

// getFaction returns the faction with its members; ?all=true includes former ones.
func (h *Handler) getFaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	all := r.URL.Query().Get("all") == "true"
	h.read(w, r, func() (interface{}, error) {
		f, err := h.Repo.Faction(id)
		if err != nil {
			return nil, err
		}
		members, err := h.Factions.Members(id, all)
		if err != nil {
			return nil, err
		}
		rels, err := h.Repo.FactionRelationships()
		if err != nil {
			return nil, err
		}
		d := factionDetail{Faction: f.Clone(), Members: clones(members), Relationships: []*model.FactionRelationship{}}
		for _, rel := range rels {
			if rel.FactionA == id || rel.FactionB == id {
				d.Relationships = append(d.Relationships, rel.Clone())
			}
		}
		return d, nil
	})
}

type addMemberRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req addMemberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.write(w, r, http.StatusCreated, func(ctx context.Context) (interface{}, error) {
		ms, err := h.Factions.AddMember(ctx, id, req.AgentID)
		if err != nil {
			return nil, err
		}
		return ms.Clone(), nil
	})
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, agentID := chi.URLParam(r, "id"), chi.URLParam(r, "agentID")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "removed"
	}
	h.write(w, r, http.StatusOK, func(ctx context.Context) (interface{}, error) {
		if err := h.Factions.RemoveMember(ctx, id, agentID, reason); err != nil {
			return nil, err
		}
		return map[string]string{"status": "removed"}, nil
	})
}

type factionRelationshipRequest struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

func (h *Handler) setFactionRelationship(w http.ResponseWriter, r *http.Request) {
	id, other := chi.URLParam(r, "id"), chi.URLParam(r, "otherID")
	var req factionRelationshipRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.write(w, r, http.StatusOK, func(context.Context) (interface{}, error) {
		rel, err := h.Factions.SetFactionRelationship(id, other, req.Score, req.Reason)
		if err != nil {
			return nil, err
		}
		return rel.Clone(), nil
	})
}
