package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Service runs the HTTP server until its context is cancelled. It satisfies
// suture.Service.
type Service struct {
	srv  *Server
	addr string
}

// Service wraps the server for supervision on addr.
func (s *Server) Service(addr string) *Service {
	return &Service{srv: s, addr: addr}
}

// Serve listens on the configured address and shuts down gracefully when
// ctx is cancelled.
func (svc *Service) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", svc.addr)
	if err != nil {
		return err
	}
	return svc.serveListener(ctx, ln)
}

func (svc *Service) serveListener(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           svc.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svc.srv.logger.Info().Str("addr", ln.Addr().String()).Msg("server listening")
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (svc *Service) String() string {
	return "http-server"
}
