package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
)

const (
	shutdownTimeout     = 10 * time.Second
	receiveRetryBackoff = time.Second
	maxReceiveBackoff   = 30 * time.Second
)

type pinger interface {
	Ping(context.Context) error
}

type lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// receiveFunc blocks consuming distributed broadcasts until ctx is cancelled.
type receiveFunc func(ctx context.Context) error

type ServiceParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Bus          lifecycle
	Dependencies map[string]pinger
	Receive      receiveFunc
	Handler      http.Handler
	Listener     net.Listener
}

type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	bus      lifecycle
	deps     map[string]pinger
	receive  receiveFunc
	handler  http.Handler
	listener net.Listener
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	if params.Config.Admin.Enabled && params.Handler == nil {
		return nil, errors.New("admin handler is required when the admin api is enabled")
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		bus:      params.Bus,
		deps:     params.Dependencies,
		receive:  params.Receive,
		handler:  params.Handler,
		listener: params.Listener,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, dep := range s.deps {
		if dep == nil {
			continue
		}
		if err := pingDependency(ctx, s.logg, name, dep.Ping); err != nil {
			return err
		}
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run starts the bus, the broadcast receiver, and the admin server, and blocks until ctx is
// cancelled or the admin server fails.
func (s *Service) Run(ctx context.Context) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.receive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.receiveLoop(runCtx)
		}()
	}

	serverErr := make(chan error, 1)
	var server *http.Server
	if s.cfg.Admin.Enabled {
		server = &http.Server{
			Addr:              ":" + s.cfg.App.Port,
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			var serveErr error
			if s.listener != nil {
				serveErr = server.Serve(s.listener)
			} else {
				serveErr = server.ListenAndServe()
			}
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				serverErr <- serveErr
			}
		}()
		s.logg.Info(s.logg.WithField(ctx, "addr", server.Addr), "admin api listening")
	}

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case serveErr := <-serverErr:
		err = fmt.Errorf("admin api: %w", serveErr)
	}

	cancel()
	if server != nil {
		shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		err = multierr.Append(err, ignoreClosed(server.Shutdown(shutdownCtx)))
		stop()
	}
	wg.Wait()
	err = multierr.Append(err, s.bus.Stop())
	return err
}

// receiveLoop restarts the receiver with capped backoff until ctx is cancelled.
func (s *Service) receiveLoop(ctx context.Context) {
	backoff := receiveRetryBackoff
	for {
		err := s.receive(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "retry_in", backoff.String()), "event broadcast receiver stopped", err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxReceiveBackoff {
			backoff = maxReceiveBackoff
		}
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
