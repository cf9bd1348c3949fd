package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/BrunoV21/CodeTide/internal/graph"
	"github.com/BrunoV21/CodeTide/internal/logging"
	"github.com/BrunoV21/CodeTide/internal/orchestrator"
)

// server exposes the engine's query surface over HTTP.
type server struct {
	engine *orchestrator.Engine
	router *mux.Router
}

func newServer(engine *orchestrator.Engine) *server {
	s := &server{engine: engine, router: mux.NewRouter()}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	s.router.Use(logging.RequestMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/tree", s.handleTree).Methods("GET")
	s.router.HandleFunc("/context", s.handleContext).Methods("POST")
	s.router.HandleFunc("/suggest", s.handleSuggest).Methods("GET")
	s.router.HandleFunc("/validate", s.handleValidate).Methods("GET")
	s.router.HandleFunc("/update", s.handleUpdate).Methods("POST")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// serve listens on addr until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, engine *orchestrator.Engine, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(engine).router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("query server listening", "component", "http", "addr", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version,
		"snapshot": s.engine.SnapshotID(),
	})
}

func (s *server) handleTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.engine.GetTreeView(queryBool(q.Get("modules")), queryBool(q.Get("types")))))
}

type contextRequest struct {
	Identifiers []string `json:"identifiers"`
	Degree      *int     `json:"degree,omitempty"`
}

func (s *server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	if len(req.Identifiers) == 0 {
		writeError(w, http.StatusBadRequest, "identifiers is required", nil)
		return
	}
	degree := s.engine.Config().Retrieval.DefaultDegree
	if req.Degree != nil {
		degree = *req.Degree
	}
	cs, err := s.engine.Get(req.Identifiers, degree)
	if err != nil {
		var ambiguous *graph.AmbiguousIdentifierError
		var unknown *graph.UnknownIdentifierError
		switch {
		case errors.As(err, &ambiguous):
			writeError(w, http.StatusConflict, err.Error(), map[string]any{"candidates": ambiguous.Candidates})
		case errors.As(err, &unknown):
			writeError(w, http.StatusNotFound, err.Error(), map[string]any{"suggestions": unknown.Suggestions})
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), nil)
		}
		return
	}
	writeResponse(w, http.StatusOK, map[string]any{
		"ids":     cs.IDs(),
		"context": cs.String(),
	})
}

func (s *server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("q")
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "q is required", nil)
		return
	}
	fuzzy := true
	if v := q.Get("fuzzy"); v != "" {
		fuzzy = queryBool(v)
	}
	suggestions := s.engine.Suggest(prefix, fuzzy)
	if suggestions == nil {
		suggestions = []string{}
	}
	writeResponse(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	writeResponse(w, http.StatusOK, s.engine.ValidateIdentifier(id))
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	res, err := s.engine.CheckForUpdates(r.Context(), orchestrator.UpdateOptions{
		Serialize:        cfg.Cache.Enabled,
		IncludeCachedIDs: cfg.Cache.IncludeCachedIDs,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeResponse(w, http.StatusOK, res)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, map[string]any{
		"stats":      s.engine.Stats(),
		"failures":   s.engine.Failures(),
		"collisions": s.engine.Collisions(),
	})
}

func queryBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func writeResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string, details map[string]any) {
	body := map[string]any{"message": msg}
	for k, v := range details {
		body[k] = v
	}
	writeResponse(w, code, map[string]any{"error": body})
}
