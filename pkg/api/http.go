package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// Permission names the core consumes from the host's predicate.
const (
	PermissionRead  = "dbaas:read"
	PermissionWrite = "dbaas:write"
)

// PermissionCheck is the host-supplied callback: check(permission,
// subject) -> bool. The core never implements authentication or
// authorization itself; it only calls this.
type PermissionCheck func(permission string, subject any) bool

// SubjectFunc extracts the caller identity from a request for
// PermissionCheck. The default treats the *http.Request itself as the
// subject, leaving the host's check function free to read whatever
// headers or context values it populated upstream.
type SubjectFunc func(r *http.Request) any

// RouterConfig wires a Service into the reference net/http handler.
type RouterConfig struct {
	Service *Service
	// Prefix is mounted in front of every resource path (e.g.
	// "/dbaas/"). Defaults to "/dbaas".
	Prefix  string
	Check   PermissionCheck
	Subject SubjectFunc
}

// NewRouter builds the chi-routed HTTP handler exposing the resource
// operations Service implements, using the standard
// chi + go-chi/cors + middleware.Logger/Recoverer/RequestID/RealIP/Compress
// stack.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = "/dbaas"
	}
	if cfg.Subject == nil {
		cfg.Subject = func(r *http.Request) any { return r }
	}
	if cfg.Check == nil {
		cfg.Check = func(string, any) bool { return true }
	}

	h := &handler{svc: cfg.Service, check: cfg.Check, subject: cfg.Subject}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route(cfg.Prefix, func(r chi.Router) {
		r.Get("/engines", h.listEngines)
		r.Get("/skus", h.listSkus)
		r.Get("/host", h.host)

		r.Route("/instances", func(r chi.Router) {
			r.With(h.require(PermissionRead)).Get("/", h.listInstances)
			r.With(h.require(PermissionWrite)).Post("/", h.createInstance)

			r.Route("/{id}", func(r chi.Router) {
				r.With(h.require(PermissionRead)).Get("/", h.getInstance)
				r.With(h.require(PermissionWrite)).Post("/start", h.startInstance)
				r.With(h.require(PermissionWrite)).Post("/stop", h.stopInstance)
				r.With(h.require(PermissionWrite)).Post("/restart", h.restartInstance)
				r.With(h.require(PermissionWrite)).Delete("/", h.destroyInstance)
				r.With(h.require(PermissionRead)).Get("/logs", h.logs)
				r.With(h.require(PermissionRead)).Get("/stats", h.stats)
				r.With(h.require(PermissionRead)).Get("/inspect", h.inspect)
				r.With(h.require(PermissionRead)).Get("/metrics", h.metrics)
				r.With(h.require(PermissionRead)).Get("/health", h.health)
				r.With(h.require(PermissionRead)).Get("/export", h.export)
				r.With(h.require(PermissionWrite)).Post("/credentials/rotate", h.rotateCredentials)

				r.With(h.require(PermissionWrite)).Post("/snapshot", h.createSnapshot)
				r.With(h.require(PermissionRead)).Get("/snapshots", h.listSnapshots)
				r.With(h.require(PermissionWrite)).Post("/restore/{sid}", h.restoreSnapshot)
				r.With(h.require(PermissionWrite)).Delete("/snapshots/{sid}", h.deleteSnapshot)
			})
		})
	})

	return r
}

type handler struct {
	svc     *Service
	check   PermissionCheck
	subject SubjectFunc
}

func (h *handler) require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !h.check(permission, h.subject(r)) {
				writeError(w, http.StatusForbidden, errors.New("api: permission denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func (h *handler) listEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Engines())
}

func (h *handler) listSkus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Skus())
}

func (h *handler) host(w http.ResponseWriter, r *http.Request) {
	capacity, err := h.svc.Host(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, capacity)
}

func (h *handler) listInstances(w http.ResponseWriter, r *http.Request) {
	filter := storage.InstanceFilter{
		Engine: r.URL.Query().Get("engine"),
		Status: types.InstanceStatus(r.URL.Query().Get("status")),
	}
	instances, err := h.svc.ListInstances(r.Context(), filter)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (h *handler) createInstance(w http.ResponseWriter, r *http.Request) {
	var spec types.CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, err := h.svc.CreateInstance(r.Context(), &spec)
	if inst == nil {
		writeError(w, errorStatus(err), err)
		return
	}
	// err != nil here means a runtime-class failure already captured
	// on inst.ErrorMessage/Status: the caller is told "accepted, check
	// status", not given an HTTP error.
	writeJSON(w, http.StatusCreated, inst)
}

func (h *handler) getInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, err := h.svc.GetInstance(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *handler) startInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, err := h.svc.StartInstance(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *handler) stopInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, err := h.svc.StopInstance(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *handler) restartInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, err := h.svc.RestartInstance(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *handler) destroyInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.DestroyInstance(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *handler) rotateCredentials(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, err := h.svc.RotateCredentials(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username": inst.Username,
		"password": inst.Password,
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) inspect(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	insp, err := h.svc.Inspect(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.svc.Metrics(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sample, err := h.svc.Health(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	var logsQuery LogsQuery
	if tail := q.Get("tail"); tail != "" {
		logsQuery.Tail, _ = strconv.Atoi(tail)
	}
	if since := q.Get("since"); since != "" {
		logsQuery.Since, _ = time.Parse(time.RFC3339, since)
	}
	if until := q.Get("until"); until != "" {
		logsQuery.Until, _ = time.Parse(time.RFC3339, until)
	}
	logsQuery.Level = q.Get("level")

	entries, err := h.svc.Logs(r.Context(), id, logsQuery)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rc, err := h.svc.Export(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (h *handler) createSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	snap, err := h.svc.CreateSnapshot(r.Context(), id, body.Notes)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snaps, err := h.svc.ListSnapshots(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *handler) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sid, err := pathID(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.RestoreSnapshot(r.Context(), id, sid); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *handler) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sid, err := pathID(r, "sid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.DeleteSnapshot(r.Context(), id, sid); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
