package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/api"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server runs the HTTP API over a set of Components.
type Server struct {
	c   *Components
	srv *http.Server
}

func NewServer(c *Components) *Server {
	h := api.New(api.Config{
		Items:      c.Items,
		Collection: c.Collection,
		Logger:     c.Logger,
		ScratchDir: c.Config.ScratchDir,
		ObjectsDir: c.ObjectsDir,
	}).Routes()

	return &Server{
		c: c,
		srv: &http.Server{
			Addr:              c.Config.HTTPAddr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is done or SIGINT/SIGTERM/SIGQUIT arrives, then shuts
// down gracefully and closes the components.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	initSignalHandler(ctx, cancel)

	s.c.Logger.Info(ctx, "Starting server...", "addr", s.srv.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return s.srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := s.c.Close(); cerr != nil {
		s.c.Logger.Error(ctx, "closing components failed", "error", cerr)
	}
	if err != nil {
		s.c.Logger.Error(ctx, "server stopped", "error", err)
		return err
	}
	s.c.Logger.Info(ctx, "server stopped")
	return nil
}

func initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}
