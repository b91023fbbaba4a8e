// Package handler exposes the agent's HTTP JSON API: inbound
// container lifecycle events, image statistics, eviction selection,
// and post-deletion bookkeeping.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bucket-xv/ImageCache/internal/core"
	"github.com/bucket-xv/ImageCache/internal/telemetry"
)

// API serves the agent endpoints. It is mounted onto the transport
// layer's ServeMux via Mount.
type API struct {
	cache   *core.ImageCache
	metrics *telemetry.Metrics
	version core.Version
	log     *slog.Logger
}

// NewAPI returns an API backed by the given cache.
func NewAPI(cache *core.ImageCache, metrics *telemetry.Metrics, version core.Version) *API {
	return &API{
		cache:   cache,
		metrics: metrics,
		version: version,
		log:     slog.Default().With("component", "api"),
	}
}

// Mount registers all routes. Implements the transport MountFunc
// contract.
func (a *API) Mount(mux *http.ServeMux) error {
	mux.HandleFunc("GET /healthz", a.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/events/run", a.eventRun)
	mux.HandleFunc("POST /v1/events/stop", a.eventStop)
	mux.HandleFunc("GET /v1/images", a.listImages)
	mux.HandleFunc("GET /v1/images/unused", a.listUnused)
	mux.HandleFunc("POST /v1/evict", a.evict)
	mux.HandleFunc("DELETE /v1/images/{id}", a.forget)

	return nil
}

// runEventRequest is the body of POST /v1/events/run. UsageTime is an
// optional Go duration string ("30s", "2m") credited to the image's
// lifetime usage total.
type runEventRequest struct {
	ImageID     string `json:"image_id"`
	ContainerID string `json:"container_id"`
	UsageTime   string `json:"usage_time,omitempty"`
}

type stopEventRequest struct {
	ImageID     string `json:"image_id"`
	ContainerID string `json:"container_id"`
}

type evictRequest struct {
	Policy string `json:"policy,omitempty"`
}

type evictResponse struct {
	Evicted bool   `json:"evicted"`
	ImageID string `json:"image_id,omitempty"`
}

// imageStatResponse mirrors core.ImageStat with wire-friendly field
// encodings.
type imageStatResponse struct {
	ImageID           string    `json:"image_id"`
	ActiveRefs        int       `json:"active_refs"`
	RecentUses        int       `json:"recent_uses"`
	TotalUsageSeconds float64   `json:"total_usage_seconds"`
	LastUsed          time.Time `json:"last_used"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": string(a.version),
	})
}

func (a *API) eventRun(w http.ResponseWriter, r *http.Request) {
	var req runEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &core.ErrInvalidInput{Message: err.Error()})
		return
	}

	var hint time.Duration
	if req.UsageTime != "" {
		var err error
		if hint, err = time.ParseDuration(req.UsageTime); err != nil {
			writeError(w, &core.ErrInvalidInput{Field: "usage_time", Message: err.Error()})
			return
		}
	}

	if err := a.cache.DetectRun(req.ImageID, req.ContainerID, hint); err != nil {
		a.metrics.RecordRefError(r.Context())
		writeError(w, err)
		return
	}
	a.metrics.RecordStart(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) eventStop(w http.ResponseWriter, r *http.Request) {
	var req stopEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &core.ErrInvalidInput{Message: err.Error()})
		return
	}

	if err := a.cache.DetectStop(req.ImageID, req.ContainerID); err != nil {
		a.metrics.RecordRefError(r.Context())
		writeError(w, err)
		return
	}
	a.metrics.RecordStop(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listImages(w http.ResponseWriter, _ *http.Request) {
	stats := a.cache.Stats()
	out := make([]imageStatResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, imageStatResponse{
			ImageID:           st.ImageID,
			ActiveRefs:        st.ActiveRefs,
			RecentUses:        st.RecentUses,
			TotalUsageSeconds: st.TotalUsage.Seconds(),
			LastUsed:          st.LastUsed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listUnused(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cache.UnusedImages())
}

// evict runs eviction *selection* only. The caller owns the physical
// delete and reports back via DELETE /v1/images/{id} once it
// succeeded.
func (a *API) evict(w http.ResponseWriter, r *http.Request) {
	var req evictRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, &core.ErrInvalidInput{Message: err.Error()})
			return
		}
	}

	var (
		id string
		ok bool
	)
	if req.Policy != "" {
		policy, err := core.ParsePolicy(req.Policy)
		if err != nil {
			writeError(w, err)
			return
		}
		id, ok = a.cache.Evict(policy)
	} else {
		id, ok = a.cache.Evict()
	}

	writeJSON(w, http.StatusOK, evictResponse{Evicted: ok, ImageID: id})
}

func (a *API) forget(w http.ResponseWriter, r *http.Request) {
	if err := a.cache.Forget(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Reference
// mismatches are client (collaborator) errors, never 5xx: the ledger
// is intact and the caller is expected to reconcile.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		invalid *core.ErrInvalidInput
		dup     *core.ErrDuplicateReference
		unknown *core.ErrUnknownReference
		inUse   *core.ErrImageInUse
	)
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.As(err, &dup):
		status = http.StatusConflict
	case errors.As(err, &unknown):
		status = http.StatusNotFound
	case errors.As(err, &inUse):
		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
