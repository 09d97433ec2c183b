// Package eventloop runs listener.Service handlers behind one of two
// concurrency shapes: a shared thread pool (goroutines work-stolen across
// GOMAXPROCS) or a set of independent reactors, each pinned to its own OS
// thread with its own accept loop. Both shapes serve the same
// http.Handler; only how connections are accepted differs.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"

	"github.com/bpowers/ronvoy/internal/listener"
)

// Kind names the two concurrency shapes a Service can run under.
type Kind string

const (
	SharedPoolKind  Kind = "shared-pool"
	IndependentKind Kind = "independent"
)

// Service runs a listener.Service's handler against its bound address
// under one of the two concurrency shapes.
type Service struct {
	kind    Kind
	workers int
	log     *slog.Logger
}

// New returns a Service for the given shape. workers is clamped to at
// least 1; a non-positive value falls back to runtime.NumCPU() exactly as
// spec.md §6's CONCURRENCY handling requires upstream.
func New(kind Kind, workers int, log *slog.Logger) *Service {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Service{kind: kind, workers: workers, log: log}
}

// Run serves every listener.Service until ctx is canceled, then starts a
// graceful Shutdown of each server and returns once every Serve call has
// returned; it does not wait for in-flight connections to drain. A fatal
// Serve error does not stop the other servers: Run still returns only
// after every server has stopped, and then reports the first such error.
// http.ErrServerClosed from a graceful shutdown is not an
// error. A bootstrap with no listeners at all is not an error either: Run
// idles, blocked on ctx, until signalled (spec.md §8 scenario 6).
func (s *Service) Run(ctx context.Context, services []*listener.Service) error {
	if len(services) == 0 {
		<-ctx.Done()
		return nil
	}

	switch s.kind {
	case IndependentKind:
		return s.runIndependent(ctx, services)
	default:
		return s.runSharedPool(ctx, services)
	}
}

// runSharedPool is one net/http.Server per listener, each Serve'd as a
// goroutine under the process-wide scheduler. GOMAXPROCS is set to
// s.workers so the scheduler has that many OS threads to spread
// goroutines across.
func (s *Service) runSharedPool(ctx context.Context, services []*listener.Service) error {
	runtime.GOMAXPROCS(s.workers)

	var wg sync.WaitGroup
	errs := make(chan error, len(services))

	for _, svc := range services {
		lis, err := net.Listen("tcp", svc.ListenAddr.String())
		if err != nil {
			return fmt.Errorf("eventloop: listening on %s: %w", svc.ListenAddr, err)
		}

		httpSrv := &http.Server{Handler: svc}
		s.log.Info("ronvoy listening", "listener", svc.Name, "addr", svc.ListenAddr.String())

		wg.Add(1)
		go func(lis net.Listener, httpSrv *http.Server) {
			defer wg.Done()
			if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}(lis, httpSrv)

		go func(httpSrv *http.Server) {
			<-ctx.Done()
			_ = httpSrv.Shutdown(context.Background())
		}(httpSrv)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runIndependent spawns s.workers goroutines per listener, each pinned to
// its own OS thread, each accepting on its own listener obtained from
// newListener (platform-specific: SO_REUSEPORT on linux, dup+FileListener
// elsewhere).
func (s *Service) runIndependent(ctx context.Context, services []*listener.Service) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(services)*s.workers)

	for _, svc := range services {
		listeners, err := newListener(svc.ListenAddr.String(), s.workers)
		if err != nil {
			return fmt.Errorf("eventloop: listening on %s: %w", svc.ListenAddr, err)
		}

		s.log.Info("ronvoy listening", "listener", svc.Name, "addr", svc.ListenAddr.String(), "reactors", len(listeners))

		for _, lis := range listeners {
			wg.Add(1)
			go func(lis net.Listener, svc *listener.Service) {
				defer wg.Done()
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()

				httpSrv := &http.Server{Handler: svc}
				go func() {
					<-ctx.Done()
					_ = httpSrv.Shutdown(context.Background())
				}()

				if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errs <- err
				}
			}(lis, svc)
		}
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
