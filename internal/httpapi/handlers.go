// Package httpapi serves the campaign JSON API, the login redirects and the
// bundled web client.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"larpcamp.org/internal/auth"
	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/obs"
	"larpcamp.org/internal/stream"
)

const serviceName = "larpcamp-api"

// ReadyProbe reports whether the backing store answers.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ping(ctx context.Context) error { return f(ctx) }

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	campaign   *campaign.Service
	sessions   *auth.Sessions
	stream     *stream.Stream
	readyProbe ReadyProbe
	validate   *validator.Validate
	version    string
	staticDir  string

	rateBurst    int
	ratePerSec   float64
	maxBodyBytes int64
	corsOrigins  []string
	secureCookie bool
}

// Option configures API.
type Option func(*API)

// WithStream enables the staff live stream.
func WithStream(s *stream.Stream) Option { return func(a *API) { a.stream = s } }

// WithReadyProbe sets the /readyz check.
func WithReadyProbe(p ReadyProbe) Option { return func(a *API) { a.readyProbe = p } }

// WithStaticDir serves the web client from dir.
func WithStaticDir(dir string) Option { return func(a *API) { a.staticDir = dir } }

// WithRateLimit overrides the per-IP token bucket.
func WithRateLimit(burst int, perSec float64) Option {
	return func(a *API) {
		if burst > 0 && perSec > 0 {
			a.rateBurst, a.ratePerSec = burst, perSec
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithCORSOrigins allows extra browser origins.
func WithCORSOrigins(origins []string) Option { return func(a *API) { a.corsOrigins = origins } }

// WithSecureCookies marks session cookies Secure (HTTPS deployments).
func WithSecureCookies(secure bool) Option { return func(a *API) { a.secureCookie = secure } }

func New(svc *campaign.Service, sessions *auth.Sessions, version string, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		campaign:     svc,
		sessions:     sessions,
		readyProbe:   readyFunc(func(context.Context) error { return nil }),
		validate:     newValidator(),
		version:      version,
		rateBurst:    40,
		ratePerSec:   20,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	obs.Init()
	a.routes()
	return a
}

func (a *API) routes() {
	// health/ready/metrics
	a.handle("GET /healthz", http.HandlerFunc(a.Healthz))
	a.handle("GET /readyz", http.HandlerFunc(a.Ready))
	a.handle("GET /metrics", obs.Handler())

	// player API
	a.handle("GET /api/playerData", a.player(a.playerData))
	a.handle("POST /api/updateStats", a.player(a.updateStats))
	a.handle("POST /api/updateDowntime", a.player(a.updateDowntime))

	// staff API
	a.handle("GET /api/staffData", a.staff(a.staffData))
	a.handle("POST /api/newPlayer", a.staff(a.newPlayer))
	a.handle("POST /api/addWorldJournalEntry", a.staff(a.addWorldJournalEntry))
	a.handle("POST /api/rejectDowntime", a.staff(a.rejectDowntime))
	a.handle("POST /api/acceptDowntime", a.staff(a.acceptDowntime))
	a.handle("POST /api/addTags", a.staff(a.addTags))
	a.handle("POST /api/removeTags", a.staff(a.removeTags))
	a.handle("POST /api/releaseJournalDrafts", a.staff(a.releaseJournalDrafts))
	a.handle("GET /api/stream", a.staff(a.Stream))

	// setup and login redirects
	a.handle("GET /setup", http.HandlerFunc(a.setup))
	a.handle("GET /player-login", http.HandlerFunc(a.playerLogin))
	a.handle("GET /staff-login", http.HandlerFunc(a.staffLogin))

	// web client
	a.mux.Handle("GET /{$}", http.HandlerFunc(a.index))
	a.mux.Handle("GET /", a.static())
}

// handle registers pattern and its path as a metrics label.
func (a *API) handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
	if _, path, ok := strings.Cut(pattern, " "); ok {
		obs.RegisterRoutes(path)
	}
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(a.corsOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Ping(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
