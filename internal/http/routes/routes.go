package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/accesstrails/trailsync/cache"
	"github.com/accesstrails/trailsync/fetch"
	"github.com/accesstrails/trailsync/remote"
	"github.com/accesstrails/trailsync/syncqueue"
	"github.com/accesstrails/trailsync/trail"
)

const maxPayloadBytes = 1 << 20

// Connectivity is the online flag surfaced to clients.
type Connectivity interface {
	Online() bool
}

type Server struct {
	Router  *chi.Mux
	Fetcher *fetch.Fetcher
	Queue   *syncqueue.Queue
	Coord   *syncqueue.Coordinator
	Source  remote.Source
	Conn    Connectivity
	Timeout time.Duration
	Log     zerolog.Logger
}

type ServerOptions struct {
	Fetcher *fetch.Fetcher
	Queue   *syncqueue.Queue
	Coord   *syncqueue.Coordinator
	Source  remote.Source
	Conn    Connectivity
	Timeout time.Duration
	Log     zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:  r,
		Fetcher: opts.Fetcher,
		Queue:   opts.Queue,
		Coord:   opts.Coord,
		Source:  opts.Source,
		Conn:    opts.Conn,
		Timeout: opts.Timeout,
		Log:     opts.Log,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.Log.Warn().Err(err).Msg("write health check response")
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", s.handleStats)
		api.Post("/stats/refresh", s.handleStatsRefresh)
		api.Get("/trails", s.handleTrails)
		api.Post("/trails/refresh", s.handleTrailsRefresh)

		api.Post("/routes", s.submitHandler(trail.CategoryRoutes))
		api.Post("/reports", s.submitHandler(trail.CategoryReports))
		api.Post("/guides", s.submitHandler(trail.CategoryGuides))

		api.Get("/sync/status", s.handleSyncStatus)
		api.Post("/sync/drain", s.handleSyncDrain)
	})

	return s
}

// queryResponse is what the UI renders for any cached read.
type queryResponse struct {
	Records   []remote.Record `json:"records"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.serveQuery(w, r, "stats", remote.QuerySpec{Collection: "stats"}, false)
}

func (s *Server) handleStatsRefresh(w http.ResponseWriter, r *http.Request) {
	s.serveQuery(w, r, "stats", remote.QuerySpec{Collection: "stats"}, true)
}

func trailsQuery(r *http.Request) (string, remote.QuerySpec) {
	params := map[string]string{}
	if region := r.URL.Query().Get("region"); region != "" {
		params["region"] = region
	}
	if surface := r.URL.Query().Get("surface_type"); surface != "" {
		params["surface_type"] = surface
	}
	spec := remote.QuerySpec{Collection: "trails", Filter: params}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			spec.Limit = n
		}
	}
	key := cache.KeyFor("trails", params)
	return key, spec
}

func (s *Server) handleTrails(w http.ResponseWriter, r *http.Request) {
	key, spec := trailsQuery(r)
	s.serveQuery(w, r, key, spec, false)
}

func (s *Server) handleTrailsRefresh(w http.ResponseWriter, r *http.Request) {
	key, spec := trailsQuery(r)
	s.serveQuery(w, r, key, spec, true)
}

func (s *Server) serveQuery(w http.ResponseWriter, r *http.Request, key string, spec remote.QuerySpec, refresh bool) {
	primary := func(ctx context.Context) ([]remote.Record, error) { return s.Source.Primary(ctx, spec) }
	secondary := func(ctx context.Context) ([]remote.Record, error) { return s.Source.Secondary(ctx, spec) }

	run := s.Fetcher.Fetch
	if refresh {
		run = s.Fetcher.Refresh
	}
	entry, err := run(r.Context(), key, primary, secondary, s.Timeout)
	if err != nil {
		s.writeError(w, key, err)
		return
	}
	s.writeJSON(w, http.StatusOK, queryResponse{
		Records:   entry.Records,
		Source:    entry.Origin.String(),
		FetchedAt: entry.FetchedAt,
	})
}

// submitHandler enqueues a write for the category. The payload is stored
// durably before the response goes out; delivery happens when
// connectivity allows.
func (s *Server) submitHandler(category string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			http.Error(w, "could not read body", http.StatusBadRequest)
			return
		}
		if err := trail.ValidatePayload(category, body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, err := s.Queue.Enqueue(r.Context(), category, body)
		if err != nil {
			s.Log.Error().Str("category", category).Err(err).Msg("enqueue failed")
			http.Error(w, "could not queue submission", http.StatusInternalServerError)
			return
		}
		if err := s.Coord.RequestSync(r.Context(), category); err != nil {
			s.Log.Warn().Str("category", category).Err(err).Msg("sync request failed")
		}

		pending, err := s.Queue.PendingCount(r.Context())
		if err != nil {
			pending = -1
		}
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"id":      id,
			"pending": pending,
		})
	}
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Queue.PendingCount(r.Context())
	if err != nil {
		s.Log.Error().Err(err).Msg("pending count failed")
		http.Error(w, "could not read sync state", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"online":  s.Conn.Online(),
	})
}

func (s *Server) handleSyncDrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.Queue.DrainAll(r.Context())
	if err != nil {
		s.Log.Error().Err(err).Msg("manual drain failed")
		http.Error(w, "drain failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"delivered": res.Delivered,
		"remaining": res.Remaining,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Warn().Err(err).Msg("write json response")
	}
}

// writeError maps core failures onto HTTP statuses: terminal errors are
// the caller's fault or a hard no, exhausted retries mean "try again
// later".
func (s *Server) writeError(w http.ResponseWriter, key string, err error) {
	var exhausted *fetch.ExhaustedError
	if errors.As(err, &exhausted) {
		s.Log.Warn().Str("key", key).Err(err).Msg("fetch exhausted retries")
		w.Header().Set("Retry-After", "30")
		http.Error(w, "data temporarily unavailable, try again", http.StatusServiceUnavailable)
		return
	}
	switch remote.KindOf(err) {
	case remote.KindNotFound:
		http.Error(w, "not found", http.StatusNotFound)
	case remote.KindPermissionDenied:
		http.Error(w, "forbidden", http.StatusForbidden)
	case remote.KindMalformed:
		http.Error(w, "bad request", http.StatusBadRequest)
	case remote.KindTimeout, remote.KindUnavailable, remote.KindContention:
		http.Error(w, "data temporarily unavailable", http.StatusServiceUnavailable)
	default:
		s.Log.Error().Str("key", key).Err(err).Msg("query failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
