package server

const (
	RouteLogin         = "/api/login"
	RouteContextSwitch = "/api/context-switch"
	RouteCodeRequest   = "/api/otp/request"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteContextSwitch, ChainMiddleware(s.ContextSwitchHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteCodeRequest, ChainMiddleware(s.CodeRequestHandler(), s.APIMiddleware()...))
}
