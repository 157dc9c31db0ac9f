package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"creature-tree/internal/game"
	"creature-tree/internal/game/proximity"
	"creature-tree/internal/game/spatial"
)

type nearbyResponse struct {
	Creature    game.Creature        `json:"creature"`
	VisualRange uint32               `json:"visualRange"`
	Neighbors   []proximity.Neighbor `json:"neighbors"`
}

type nearestResponse struct {
	X       int32              `json:"x"`
	Y       int32              `json:"y"`
	Radius  uint32             `json:"radius"`
	Handles []proximity.Handle `json:"handles"`
}

func (h *routerHandlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.IndexInfo())
}

func (h *routerHandlers) handleCreatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Creatures())
}

func (h *routerHandlers) handleNearby(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 32)
	if err != nil {
		writeError(w, "Invalid creature handle", http.StatusBadRequest)
		return
	}

	c, neighbors, err := h.engine.Nearby(proximity.Handle(id))
	switch {
	case errors.Is(err, game.ErrUnknownCreature):
		writeError(w, "Unknown creature", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Warn("nearby query failed", zap.Uint64("creature", id), zap.Error(err))
		writeError(w, "Query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, nearbyResponse{
		Creature:    c,
		VisualRange: c.VisualRange(),
		Neighbors:   neighbors,
	})
}

func (h *routerHandlers) handleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.ParseInt(q.Get("x"), 10, 32)
	y, errY := strconv.ParseInt(q.Get("y"), 10, 32)
	radius, errR := strconv.ParseUint(q.Get("r"), 10, 32)
	if err := errors.Join(errX, errY, errR); err != nil {
		writeError(w, "x, y and r must be integers (r non-negative)", http.StatusBadRequest)
		return
	}

	p := spatial.Point{X: int32(x), Y: int32(y)}
	handles, err := h.engine.Nearest(p, uint32(radius))
	if err != nil {
		h.logger.Warn("nearest query failed", zap.Error(err))
		writeError(w, "Query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, nearestResponse{X: p.X, Y: p.Y, Radius: uint32(radius), Handles: handles})
}

func (h *routerHandlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "No turn played yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleIndexPNG(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "No turn played yet", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := h.renderer.WritePNG(&buf, snap); err != nil {
		h.logger.Warn("index render failed", zap.Error(err))
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	h.metrics.RecordRender(time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
