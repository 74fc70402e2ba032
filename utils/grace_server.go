package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// gracefulEnv marks a child started by SIGUSR2; it inherits the listener as fd 3.
	gracefulEnv        = "HOPPIN_GRACEFUL"
	gracefulListenerFd = 3
)

// Server is an http.Server that drains connections on SIGTERM/SIGINT or when
// its context ends, then closes the registered resources. SIGUSR2 starts a new
// process on the same listener before shutting this one down, unless the
// RestartCheck callback refuses.
type Server struct {
	*http.Server

	log          *zap.Logger
	closers      []io.Closer
	listener     net.Listener
	restartCheck func() error
}

// RestartCheck registers fn to be consulted before a SIGUSR2 handoff. A non-nil
// error keeps this process serving and skips starting a new one.
func (srv *Server) RestartCheck(fn func() error) {
	srv.restartCheck = fn
}

// NewServer creates a Server with the default timeouts.
func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
		},
		log: log,
	}
}

// OnShutdown registers c to be closed after the HTTP server stopped, in
// registration order.
func (srv *Server) OnShutdown(c io.Closer) {
	srv.closers = append(srv.closers, c)
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (srv *Server) Run(ctx context.Context) error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.listener = ln

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	serveErr := make(chan error, 1)
	go func() {
		srv.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
		serveErr <- srv.Serve(ln)
	}()

	for {
		select {
		case err := <-serveErr:
			srv.closeAll()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			return srv.shutdown()
		case sig := <-sigs:
			if sig == syscall.SIGUSR2 {
				if !srv.handoff() {
					continue
				}
			} else {
				srv.log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			}
			return srv.shutdown()
		}
	}
}

// handoff starts a new process on the inherited listener and reports whether
// this one should shut down.
func (srv *Server) handoff() bool {
	if srv.restartCheck != nil {
		if err := srv.restartCheck(); err != nil {
			srv.log.Warn("graceful restart refused, continue serving", zap.Error(err))
			return false
		}
	}
	pid, err := srv.startNewProcess()
	if err != nil {
		srv.log.Error("graceful restart failed, continue serving", zap.Error(err))
		return false
	}
	srv.log.Info("graceful restart started new process", zap.Int("pid", pid))
	return true
}

func (srv *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	if err != nil {
		srv.log.Error("http server shutdown", zap.Error(err))
	} else {
		srv.log.Info("http server stopped")
	}
	srv.closeAll()
	return err
}

func (srv *Server) closeAll() {
	for _, c := range srv.closers {
		if err := c.Close(); err != nil {
			srv.log.Warn("close on shutdown", zap.Error(err))
		}
	}
	srv.closers = nil
}

func (srv *Server) listen() (net.Listener, error) {
	if os.Getenv(gracefulEnv) != "" {
		ln, err := net.FileListener(os.NewFile(gracefulListenerFd, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) startNewProcess() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, errors.New("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	env := append(os.Environ(), gracefulEnv+"=1")
	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}
