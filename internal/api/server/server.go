package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursereg/registrar/internal/api/handlers"
	"github.com/coursereg/registrar/internal/api/ws"
	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/orchestrator"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/coursereg/registrar/internal/waitlist"
	"github.com/rs/zerolog/log"
)

// Config is the subset of process configuration the server needs.
type Config struct {
	Port      string
	JWTSecret string
}

// Deps wires the domain-layer components the router's handlers depend on.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Repo         storage.Repository
	Waitlist     *waitlist.Waitlist
	Bus          *eventbus.Bus
}

type Server struct {
	httpServer *http.Server
}

func NewServer(cfg Config, deps Deps) *Server {
	h := handlers.New(deps.Orchestrator, deps.Repo, deps.Waitlist)
	auth := handlers.NewAuthHandler(cfg.JWTSecret)
	wsHandler := ws.New(deps.Bus, deps.Orchestrator)
	router := NewRouter(h, auth, wsHandler)

	s := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return &Server{httpServer: s}
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully with a 15s deadline, matching the teacher's server.go.
func (s *Server) Start() error {
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("server: listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", s.httpServer.Addr).Msg("server: could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("server: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
