package api

import (
	"errors"
	"net/http"

	"github.com/benmeehan/kitchen-simulator/internal/emitter"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type apiHandlers struct {
	panel   Panel
	status  StatusCollector
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// toggleResponse reports the run state after a toggle.
type toggleResponse struct {
	Running bool                `json:"running"`
	Emitter models.EmitterState `json:"emitter"`
}

func (h *apiHandlers) lookup(w http.ResponseWriter, r *http.Request) (*emitter.Emitter, bool) {
	e, err := h.panel.Emitter(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return e, true
}

func (h *apiHandlers) listEmitters(w http.ResponseWriter, r *http.Request) {
	emitters := h.panel.Emitters()
	states := make([]models.EmitterState, 0, len(emitters))
	for _, e := range emitters {
		states = append(states, e.State())
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *apiHandlers) getEmitter(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

// patchEmitter applies {"field": value} pairs. Values may be strings or
// numbers; numbers are used as written, so an interval can be given in
// milliseconds. A rejected field leaves the emitter unchanged.
func (h *apiHandlers) patchEmitter(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object"})
		return
	}

	fields := make(map[string]string, len(body))
	for field, raw := range body {
		value := string(raw)
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			value = s
		}
		fields[field] = value
	}
	if err := e.SetFields(fields); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, e.State())
}

func (h *apiHandlers) toggleEmitter(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	running, err := e.Toggle()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Running: running, Emitter: e.State()})
}

func (h *apiHandlers) sendEmitter(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !h.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many manual sends, slow down"})
		return
	}
	if err := e.Send(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

func (h *apiHandlers) getHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.History())
}

func (h *apiHandlers) getConfigSnippet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.panel.ConfigSnippet(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(snippet))
}

// listDevices returns the device catalog, optionally narrowed by ?type=.
// The type "all" matches every device.
func (h *apiHandlers) listDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.panel.Devices()
	kind := r.URL.Query().Get("type")
	if kind == "" || kind == "all" {
		writeJSON(w, http.StatusOK, devices)
		return
	}

	filtered := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if d.Type == kind {
			filtered = append(filtered, d)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

func (h *apiHandlers) resetPanel(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Reset(); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info().Msg("Panel reset through the API")
	h.listEmitters(w, r)
}

func (h *apiHandlers) getStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeError(w, errors.New("status collection is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, h.status.Collect(r.Context()))
}
