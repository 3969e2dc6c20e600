package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/store"
)

func (h *Handler) listArcs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ArcFilter{
		Type:     model.ArcType(q.Get("type")),
		Status:   model.ArcStatus(q.Get("status")),
		OpenOnly: q.Get("open") == "true",
	}
	h.read(w, r, func() (interface{}, error) {
		arcs, err := h.Repo.Arcs(f)
		if err != nil {
			return nil, err
		}
		return clones(arcs), nil
	})
}

type arcDetail struct {
	Arc    *model.NarrativeArc `json:"arc"`
	Events []model.ArcEvent    `json:"events"`
}

func (h *Handler) getArc(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.read(w, r, func() (interface{}, error) {
		arc, err := h.Repo.Arc(id)
		if err != nil {
			return nil, err
		}
		links, err := h.Repo.ArcEvents(id)
		if err != nil {
			return nil, err
		}
		d := arcDetail{Arc: arc.Clone(), Events: make([]model.ArcEvent, 0, len(links))}
		for _, l := range links {
			d.Events = append(d.Events, *l)
		}
		return d, nil
	})
}

func (h *Handler) detectArcs(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, func(ctx context.Context) (interface{}, error) {
		arcs, err := h.Arcs.Detect(ctx)
		if err != nil {
			return nil, err
		}
		return clones(arcs), nil
	})
}

type arcRequest struct {
	TurningPoint string `json:"turning_point"`
	Resolution   string `json:"resolution"`
	Reason       string `json:"reason"`
}

type arcOp func(ctx context.Context, id string, req arcRequest) (*model.NarrativeArc, error)

func (h *Handler) arcAction(op arcOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req arcRequest
		if r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}
		h.write(w, r, http.StatusOK, func(ctx context.Context) (interface{}, error) {
			arc, err := op(ctx, id, req)
			if err != nil {
				return nil, err
			}
			return arc.Clone(), nil
		})
	}
}

func (h *Handler) advanceArc(w http.ResponseWriter, r *http.Request) {
	h.arcAction(func(ctx context.Context, id string, req arcRequest) (*model.NarrativeArc, error) {
		return h.Arcs.AdvanceArc(ctx, id, req.TurningPoint)
	})(w, r)
}

func (h *Handler) completeArc(w http.ResponseWriter, r *http.Request) {
	h.arcAction(func(ctx context.Context, id string, req arcRequest) (*model.NarrativeArc, error) {
		return h.Arcs.CompleteArc(ctx, id, req.Resolution)
	})(w, r)
}

func (h *Handler) abandonArc(w http.ResponseWriter, r *http.Request) {
	h.arcAction(func(ctx context.Context, id string, req arcRequest) (*model.NarrativeArc, error) {
		reason := req.Reason
		if reason == "" {
			reason = "abandoned"
		}
		return h.Arcs.AbandonArc(ctx, id, reason)
	})(w, r)
}

func (h *Handler) listLifeEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LifeEventFilter{
		Type:   model.LifeEventType(q.Get("type")),
		Status: model.LifeEventStatus(q.Get("status")),
	}
	h.read(w, r, func() (interface{}, error) {
		evs, err := h.Repo.LifeEvents(f)
		if err != nil {
			return nil, err
		}
		return clones(evs), nil
	})
}

type scanResult struct {
	Created  []*model.LifeEvent `json:"created"`
	Resolved []*model.LifeEvent `json:"resolved"`
}

// scanLifeEvents runs a detection scan followed by a resolution check.
func (h *Handler) scanLifeEvents(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, func(ctx context.Context) (interface{}, error) {
		created, err := h.LifeEvents.Scan(ctx)
		if err != nil {
			return nil, err
		}
		resolved, err := h.LifeEvents.CheckResolutions(ctx)
		if err != nil {
			return nil, err
		}
		return scanResult{Created: clones(created), Resolved: clones(resolved)}, nil
	})
}
