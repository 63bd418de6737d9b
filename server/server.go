package server

import (
	"net/http"

	"github.com/jrsteele09/go-school-auth/auth"
	"github.com/jrsteele09/go-school-auth/internal/config"
)

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.Service
}

func New(config config.Config, authService *auth.Service) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		config: config,
		auth:   authService,
	}
	s.env = config.GetEnv()
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}
