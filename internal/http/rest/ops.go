package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/file_poller/internal/intake"
	"github.com/italolelis/file_poller/internal/logctx"
	"github.com/italolelis/file_poller/internal/storage"
	"github.com/italolelis/file_poller/internal/telemetry"
)

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 500
)

// LaneView is the read-only part of a lane the ops API exposes.
type LaneView interface {
	Name() string
	Stats() intake.LaneStats
}

type OutcomeResponse struct {
	IntakeID    string    `json:"intake_id"`
	Lane        string    `json:"lane"`
	FileName    string    `json:"file_name"`
	Status      string    `json:"status"`
	Destination string    `json:"destination,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	Size        int64     `json:"size"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// OpsHandler serves health, lane state, journal and metrics endpoints.
type OpsHandler struct {
	lanes     map[string]LaneView
	order     []string
	journal   storage.OutcomeReadRepository
	telemetry *telemetry.Telemetry
}

// NewOpsHandler builds the handler. journal may be nil when no database is configured.
func NewOpsHandler(lanes []LaneView, journal storage.OutcomeReadRepository, t *telemetry.Telemetry) *OpsHandler {
	h := &OpsHandler{
		lanes:     make(map[string]LaneView, len(lanes)),
		journal:   journal,
		telemetry: t,
	}

	for _, l := range lanes {
		h.lanes[l.Name()] = l
		h.order = append(h.order, l.Name())
	}

	return h
}

func (h *OpsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/healthz", h.healthz)
	r.Get("/lanes", h.listLanes)
	r.Get("/lanes/{lane}", h.getLane)
	r.Get("/lanes/{lane}/outcomes", h.listOutcomes)
	r.Handle("/metrics", h.telemetry.Handler())

	return r
}

func (h *OpsHandler) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	failing := []string{}

	for _, name := range h.order {
		if h.lanes[name].Stats().LastPollError != "" {
			failing = append(failing, name)
		}
	}

	if len(failing) > 0 {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["failing_lanes"] = failing
	}

	writeJSON(w, r, status, body)
}

func (h *OpsHandler) listLanes(w http.ResponseWriter, r *http.Request) {
	stats := make([]intake.LaneStats, 0, len(h.order))
	for _, name := range h.order {
		stats = append(stats, h.lanes[name].Stats())
	}

	writeJSON(w, r, http.StatusOK, stats)
}

func (h *OpsHandler) getLane(w http.ResponseWriter, r *http.Request) {
	lane, ok := h.lanes[chi.URLParam(r, "lane")]
	if !ok {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "unknown lane"})

		return
	}

	writeJSON(w, r, http.StatusOK, lane.Stats())
}

func (h *OpsHandler) listOutcomes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "lane")

	if _, ok := h.lanes[name]; !ok {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "unknown lane"})

		return
	}

	if h.journal == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "outcome journal is disabled"})

		return
	}

	limit := defaultOutcomeLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})

			return
		}

		limit = min(n, maxOutcomeLimit)
	}

	records, err := h.journal.GetOutcomes(ctx, name, limit)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to read outcomes", "lane", name, "err", err)
		writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "failed to read outcomes"})

		return
	}

	resp := make([]OutcomeResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, OutcomeResponse{
			IntakeID:    rec.IntakeID,
			Lane:        rec.Lane,
			FileName:    rec.FileName,
			Status:      rec.Status,
			Destination: rec.Destination,
			OutputPath:  rec.OutputPath,
			Error:       rec.Error,
			Size:        rec.Size,
			StartedAt:   rec.StartedAt,
			FinishedAt:  rec.FinishedAt,
		})
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctx := r.Context()
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
