// Package api serves the read and admin HTTP surface of the simulation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/nuka-society/internal/factions"
	"github.com/nidhogg/nuka-society/internal/gateway"
	"github.com/nidhogg/nuka-society/internal/goals"
	"github.com/nidhogg/nuka-society/internal/lifeevents"
	"github.com/nidhogg/nuka-society/internal/memory"
	"github.com/nidhogg/nuka-society/internal/narrative"
	"github.com/nidhogg/nuka-society/internal/orchestrator"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"github.com/nidhogg/nuka-society/internal/world"
	"go.uber.org/zap"
)

// Ticker is the simulation clock as seen by the API.
type Ticker interface {
	Tick(ctx context.Context) error
	WorldTime() time.Time
	Ticks() int64
	Running() bool
}

// MemoryReader lists an agent's memories, newest first.
type MemoryReader interface {
	Recent(ctx context.Context, agentID string, limit int) ([]*memory.Memory, error)
}

// NeighborReader answers graph queries over the mirrored relationships.
type NeighborReader interface {
	Neighbors(ctx context.Context, agentID string) ([]world.Neighbor, error)
}

// Deps are the collaborators the handlers use. Memories, Neighbors, Gateway
// and Broadcaster may be nil.
type Deps struct {
	Repo         store.Repository
	Tx           store.Transactor
	Clock        Ticker
	Spawner      *world.Spawner
	Goals        *goals.Engine
	LifeEvents   *lifeevents.Engine
	Arcs         *narrative.Engine
	Factions     *factions.Engine
	Orchestrator *orchestrator.Orchestrator
	Memories     MemoryReader
	Neighbors    NeighborReader
	Gateway      *gateway.Gateway
	Broadcaster  *gateway.Broadcaster
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Deps
	maxTicks int
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{Deps: deps, maxTicks: 144, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/world/status", h.worldStatus)
		r.Post("/tick", h.tick)
		r.Get("/broadcasts", h.broadcasts)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Route("/agents/{id}", func(r chi.Router) {
			r.Get("/", h.getAgent)
			r.Get("/relationships", h.agentRelationships)
			r.Get("/goals", h.agentGoals)
			r.Get("/plan", h.agentPlan)
			r.Get("/events", h.agentEvents)
			r.Get("/arcs", h.agentArcs)
			r.Get("/factions", h.agentFactions)
			r.Get("/narrative", h.agentNarrative)
			r.Get("/memories", h.agentMemories)
			r.Get("/neighbors", h.agentNeighbors)
		})

		r.Get("/factions", h.listFactions)
		r.Post("/factions", h.createFaction)
		r.Route("/factions/{id}", func(r chi.Router) {
			r.Get("/", h.getFaction)
			r.Post("/members", h.addMember)
			r.Delete("/members/{agentID}", h.removeMember)
			r.Put("/relationships/{otherID}", h.setFactionRelationship)
		})

		r.Get("/arcs", h.listArcs)
		r.Post("/arcs/detect", h.detectArcs)
		r.Route("/arcs/{id}", func(r chi.Router) {
			r.Get("/", h.getArc)
			r.Post("/advance", h.advanceArc)
			r.Post("/complete", h.completeArc)
			r.Post("/abandon", h.abandonArc)
		})

		r.Get("/life-events", h.listLifeEvents)
		r.Post("/life-events/scan", h.scanLifeEvents)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "world": "nuka"})
}

type worldStatus struct {
	WorldTime  time.Time               `json:"world_time"`
	Ticks      int64                   `json:"ticks"`
	Running    bool                    `json:"running"`
	Agents     int                     `json:"agents"`
	Awake      int                     `json:"awake"`
	Subsystems []orchestrator.Status   `json:"subsystems"`
	Gateway    []gateway.AdapterStatus `json:"gateway,omitempty"`
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	st := worldStatus{
		WorldTime: h.Clock.WorldTime(),
		Ticks:     h.Clock.Ticks(),
		Running:   h.Clock.Running(),
	}
	err := h.Tx.View(r.Context(), func(context.Context) error {
		agents, err := h.Repo.Agents()
		if err != nil {
			return err
		}
		st.Agents = len(agents)
		for _, a := range agents {
			if a.Awake() {
				st.Awake++
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Orchestrator != nil {
		st.Subsystems = h.Orchestrator.Status()
	}
	if h.Gateway != nil {
		st.Gateway = h.Gateway.Status()
	}
	writeJSON(w, http.StatusOK, st)
}

// tick runs ?n= ticks (default 1) synchronously.
func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	n := 1
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > h.maxTicks {
			writeError(w, simerr.Validation("n must be between 1 and %d", h.maxTicks))
			return
		}
		n = v
	}
	for i := 0; i < n; i++ {
		if err := h.Clock.Tick(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticks":      h.Clock.Ticks(),
		"world_time": h.Clock.WorldTime(),
	})
}

func (h *Handler) broadcasts(w http.ResponseWriter, r *http.Request) {
	if h.Broadcaster == nil {
		writeJSON(w, http.StatusOK, []gateway.BroadcastRecord{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.Broadcaster.History(limit))
}

// read runs fn under the world lock and writes its result.
func (h *Handler) read(w http.ResponseWriter, r *http.Request, fn func() (interface{}, error)) {
	var out interface{}
	err := h.Tx.View(r.Context(), func(context.Context) error {
		var err error
		out, err = fn()
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// write runs fn in a transaction and writes its result with status.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context) (interface{}, error)) {
	var out interface{}
	err := h.Tx.InTx(r.Context(), func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, out)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return simerr.Validation("invalid request body: %v", err)
	}
	return nil
}

// clones copies entities out of the store so encoding never races a tick.
func clones[T interface{ Clone() T }](items []T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func statusFor(err error) int {
	switch simerr.Kind(err) {
	case simerr.ErrValidation:
		return http.StatusBadRequest
	case simerr.ErrNotFound:
		return http.StatusNotFound
	case simerr.ErrConflict:
		return http.StatusConflict
	case simerr.ErrRepository:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
