package ingress

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

type Server struct {
	WS         *WSIngress
	API        *API
	listener   net.Listener
	httpServer *http.Server
}

func NewServer(ws *WSIngress, api *API) *Server {
	return &Server{
		WS:  ws,
		API: api,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws/", s.WS)
	mux.Handle("/api/", s.API)
	return mux
}

// Listen binds the web port. Serve must be called afterwards.
func (s *Server) Listen(ctx context.Context, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		log.Error().Err(err).Msg("failed to bind web port")
		return err
	}

	log.Info().Msgf("listening on http://%v", listener.Addr())

	s.listener = listener
	s.httpServer = &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	return nil
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	if s.httpServer == nil {
		return fmt.Errorf("server is not listening")
	}
	return s.httpServer.Serve(s.listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
