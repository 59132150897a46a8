package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"callq/internal/domain"
	"callq/internal/store"
	"callq/internal/usecase"
)

type callerReq struct {
	Callback    string        `json:"callback"`
	Kwargs      domain.Kwargs `json:"kwargs"`
	MaxAttempts int           `json:"max_attempts"`
	Spooler     string        `json:"spooler"`
	Priority    *int          `json:"priority"`
	// Sync runs the attempt inline instead of spooling it.
	Sync bool `json:"sync"`
}

type cronReq struct {
	Minute  string `json:"minute"`
	Hour    string `json:"hour"`
	Day     string `json:"day"`
	Month   string `json:"month"`
	Weekday string `json:"weekday"`
}

func NewServer(db *store.DB, runner *usecase.Runner) *Server {
	s := &Server{db: db, runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/callers", s.createCaller)
	r.Get("/callers", s.listCallers)
	r.Get("/callers/{id}", s.getCaller)
	r.Get("/callers/{id}/calls", s.listCalls)
	r.Post("/callers/{id}/crons", s.createCron)
	r.Get("/calls/{id}", s.getCall)
	r.Delete("/crons/{id}", s.deleteCron)

	s.router = r
	return s
}

type Server struct {
	router *chi.Mux
	db     *store.DB
	runner *usecase.Runner
}

func (s *Server) createCaller(w http.ResponseWriter, r *http.Request) {
	var req callerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Callback == "" {
		http.Error(w, "callback is required", http.StatusBadRequest)
		return
	}

	caller := domain.NewCaller(req.Callback, req.Kwargs)
	caller.MaxAttempts = req.MaxAttempts
	caller.Spooler = req.Spooler
	caller.Priority = req.Priority

	var (
		call   *domain.Call
		runErr error
	)
	if req.Sync {
		call, runErr = s.runner.Call(r.Context(), caller)
	} else {
		call, runErr = s.runner.Spool(r.Context(), caller, "")
	}
	if call == nil {
		http.Error(w, runErr.Error(), http.StatusInternalServerError)
		return
	}

	// Callback failures are data, not transport errors: the attempt
	// carries its own trace.
	resp := map[string]any{"caller": caller, "call": call}
	if runErr != nil {
		resp["error"] = runErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listCallers(w http.ResponseWriter, r *http.Request) {
	callers, err := store.ListCallers(r.Context(), s.db.Q(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"callers": callers})
}

func (s *Server) getCaller(w http.ResponseWriter, r *http.Request) {
	caller, err := store.GetCaller(r.Context(), s.db.Q(), chi.URLParam(r, "id"))
	if respondLookupErr(w, err) {
		return
	}
	attempts, err := store.CountCalls(r.Context(), s.db.Q(), caller.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	crons, err := store.CronsByCaller(r.Context(), s.db.Q(), caller.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"caller":   caller,
		"attempts": attempts,
		"crons":    crons,
	})
}

func (s *Server) listCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := store.ListCallsByCaller(r.Context(), s.db.Q(), chi.URLParam(r, "id"), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) getCall(w http.ResponseWriter, r *http.Request) {
	call, err := store.GetCall(r.Context(), s.db.Q(), chi.URLParam(r, "id"))
	if respondLookupErr(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"call": call})
}

func (s *Server) createCron(w http.ResponseWriter, r *http.Request) {
	var req cronReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	caller, err := store.GetCaller(r.Context(), s.db.Q(), chi.URLParam(r, "id"))
	if respondLookupErr(w, err) {
		return
	}

	cron := &domain.Cron{
		CallerID: caller.ID,
		Minute:   req.Minute,
		Hour:     req.Hour,
		Day:      req.Day,
		Month:    req.Month,
		Weekday:  req.Weekday,
	}
	// Reject malformed entries up front instead of at registration.
	if _, err := cron.Matrix(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := store.CreateCron(r.Context(), s.db.Q(), cron); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cron": cron})
}

func (s *Server) deleteCron(w http.ResponseWriter, r *http.Request) {
	err := store.DeleteCron(r.Context(), s.db.Q(), chi.URLParam(r, "id"))
	if respondLookupErr(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondLookupErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
	} else {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves the admin API on port with graceful shutdown.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
