package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"hellai.org/internal/access"
	"hellai.org/internal/auth"
	"hellai.org/internal/obs"
)

// ReadyProbe checks downstream readiness (typically a database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the access and auth services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	access *access.Service
	auth   *auth.Service

	rateBurst  int
	ratePerSec int
}

// entityCollections maps URL collection segments to hierarchy kinds.
var entityCollections = map[string]access.EntityKind{
	"organizations": access.KindOrganization,
	"projects":      access.KindProject,
	"tasks":         access.KindTask,
	"subtasks":      access.KindSubtask,
}

func New(accessSvc *access.Service, authSvc *auth.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		access:     accessSvc,
		auth:       authSvc,
		rateBurst:  100,
		ratePerSec: 50,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// credential and session lifecycle
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// hierarchy entities and membership
	for segment, kind := range entityCollections {
		segment, kind := segment, kind
		a.mux.HandleFunc("/v1/"+segment, func(w http.ResponseWriter, r *http.Request) {
			a.handleEntityCollection(w, r, kind)
		})
		a.mux.HandleFunc("/v1/"+segment+"/", func(w http.ResponseWriter, r *http.Request) {
			a.handleEntityScoped(w, r, segment, kind)
		})
	}

	// notes
	a.mux.HandleFunc("/v1/notes", a.handleNotes)
	a.mux.HandleFunc("/v1/notes/", a.handleNoteResource)

	// caller overview
	a.mux.HandleFunc("/v1/me", a.handleMe)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hellai-core",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "hellai-core",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
