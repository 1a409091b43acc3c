// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
	"github.com/flux-subsystem/workload-engine/internal/planner"
	"github.com/flux-subsystem/workload-engine/internal/workload"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobq_http_requests_total",
		Help: "Total number of HTTP requests handled by the Lifecycle Coordinator, by route and status code.",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobq_http_request_duration_seconds",
		Help:    "Duration of HTTP requests handled by the Lifecycle Coordinator, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler is the net/http surface over a Coordinator. It never writes
// an error directly; every domain error is translated to a status
// code in one place, writeError, keyed off apierror.Kind.
type Handler struct {
	coordinator *Coordinator
	log         logr.Logger
}

// NewHandler builds the http.Handler exposing c's operations.
func NewHandler(c *Coordinator, log logr.Logger) http.Handler {
	h := &Handler{coordinator: c, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", instrument("submit", h.submit))
	mux.HandleFunc("GET /jobs", instrument("list", h.list))
	mux.HandleFunc("GET /jobs/{uid}/status", instrument("status", h.status))
	mux.HandleFunc("GET /jobs/{uid}/logs", instrument("logs", h.logs))
	mux.HandleFunc("POST /jobs/{uid}/stop", instrument("stop", h.stop))
	mux.HandleFunc("GET /health", instrument("health", h.health))

	return requestLogging(log)(mux)
}

// statusRecorder captures the status code written by a handler so
// instrument can label the request metrics after ServeHTTP returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps h with request count and duration metrics labelled
// by route, the ambient Prometheus concern the spec is silent on but
// the teacher carries for every HTTP surface it exposes.
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

func requestLogging(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			log.V(1).Info("request", "method", r.Method, "path", r.URL.Path, "request_id", requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// submitRequest is the POST /jobs request body, mirroring JobSpec but
// with JSON-friendly field names.
type submitRequest struct {
	Name              string            `json:"name"`
	EntrypointFile    string            `json:"entrypoint_file"`
	ImageRef          string            `json:"image_ref"`
	Mode              string            `json:"mode"`
	Resources         resourcesRequest  `json:"resources"`
	Scheduling        schedulingRequest `json:"scheduling"`
	Labels            map[string]string `json:"labels"`
	SubmissionContext map[string]any    `json:"submission_context"`
}

type resourcesRequest struct {
	CPU        string `json:"cpu"`
	Memory     string `json:"memory"`
	GPU        string `json:"gpu"`
	RayVersion string `json:"ray_version"`
}

type schedulingRequest struct {
	QueueName     *string `json:"queue_name"`
	PriorityClass *string `json:"priority_class"`
}

func (req submitRequest) toJobSpec() planner.JobSpec {
	return planner.JobSpec{
		Name:           req.Name,
		EntrypointFile: req.EntrypointFile,
		ImageRef:       req.ImageRef,
		Mode:           planner.ExecutionMode(req.Mode),
		Resources: planner.ResourceOptions{
			CPU:        req.Resources.CPU,
			Memory:     req.Resources.Memory,
			GPU:        req.Resources.GPU,
			RayVersion: req.Resources.RayVersion,
		},
		Scheduling: planner.SchedulingOptions{
			QueueName:     req.Scheduling.QueueName,
			PriorityClass: req.Scheduling.PriorityClass,
		},
		Labels:            req.Labels,
		SubmissionContext: req.SubmissionContext,
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.Wrap(apierror.ValidationFailed, "invalid request body", err))
		return
	}

	id, err := h.coordinator.Submit(r.Context(), req.toJobSpec())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, id)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	includeMetadata := r.URL.Query().Get("include_metadata") == "true"
	namespace := h.coordinator.gw.Namespace()

	entries, err := h.coordinator.List(r.Context(), namespace, includeMetadata)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// identifierFromRequest reconstructs the WorkloadIdentifier the HTTP
// layer needs from the path's {uid} plus the query parameters clients
// must echo back — group, version, kind and namespace are opaque
// handle fields, not resources clients look up independently.
func identifierFromRequest(r *http.Request) workload.Identifier {
	q := r.URL.Query()
	return workload.Identifier{
		UID:       r.PathValue("uid"),
		Group:     q.Get("group"),
		Version:   q.Get("version"),
		Kind:      q.Get("kind"),
		Namespace: q.Get("namespace"),
	}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id := identifierFromRequest(r)

	meta, err := h.coordinator.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id := identifierFromRequest(r)

	tail := int64(-1)
	if v := r.URL.Query().Get("tail"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, apierror.Wrap(apierror.ValidationFailed, "tail must be an integer", err))
			return
		}
		tail = parsed
	}

	stream := r.URL.Query().Get("stream") == "true"

	if !stream {
		text, err := h.coordinator.Logs(r.Context(), id, LogOptions{Tail: tail})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
		return
	}

	h.streamLogs(w, r, id, tail)
}

func (h *Handler) streamLogs(w http.ResponseWriter, r *http.Request, id workload.Identifier, tail int64) {
	pods, err := h.coordinator.StreamPods(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	chunks := multiplexLogs(r.Context(), h.coordinator.gw, id.Namespace, pods, tail)
	for chunk := range chunks {
		if chunk.err != nil {
			h.log.Error(chunk.err, "log stream producer failed", "uid", id.UID)
			continue
		}
		if _, err := w.Write([]byte(chunk.line)); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	id := identifierFromRequest(r)

	if err := h.coordinator.Stop(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Fprintf(w, `{"detail":"failed to encode response"}`)
	}
}

// writeError is the single point translating apierror.Kind into an
// HTTP status code, per spec.md §7.
func writeError(w http.ResponseWriter, err error) {
	kind := apierror.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.StatusCode())
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}
