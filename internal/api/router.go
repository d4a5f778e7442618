package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielflataker/usv-autopilot/internal/codec"
)

// Store holds the most recently decoded dataset the server inspects.
// Swapping it is safe for concurrent readers.
type Store struct {
	mu  sync.RWMutex
	res *codec.DecodeResult
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current dataset.
func (s *Store) Set(res *codec.DecodeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.res = res
}

// Get returns the current dataset, or nil if none has been loaded yet.
func (s *Store) Get() *codec.DecodeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.res
}

// NewRouter builds the read-only inspection server: unauthenticated
// health and metrics endpoints, and JWT-gated record inspection.
func NewRouter(store *Store, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/records", func(r chi.Router) {
		r.Use(RequireAuth(jwtSecret))
		r.Get("/", listRecords(store))
		r.Get("/{name}", getRecordColumns(store))
	})

	return r
}

func listRecords(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := store.Get()
		if res == nil {
			http.Error(w, "no dataset loaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"counts":  res.Counts,
			"unknown": len(res.Unknown),
		})
	}
}

func getRecordColumns(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := store.Get()
		if res == nil {
			http.Error(w, "no dataset loaded", http.StatusServiceUnavailable)
			return
		}
		name := chi.URLParam(r, "name")
		cols, ok := res.Records[name]
		if !ok {
			http.Error(w, "unknown record name", http.StatusNotFound)
			return
		}
		writeJSON(w, cols)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
