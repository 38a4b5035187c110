package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/broadcastmesh/fabric/internal/colorlog"
	"github.com/broadcastmesh/fabric/internal/config"
	"github.com/google/uuid"
	"github.com/honeycombio/beeline-go"
	"github.com/honeycombio/beeline-go/wrappers/hnynethttp"
	"github.com/shirou/gopsutil/mem"
	"golang.org/x/xerrors"
	graceful "gopkg.in/tylerb/graceful.v1"
	"rsc.io/goversion/version"
)

// buildInfo is resolved once, at package init, by reading the running
// binary's Go build metadata.
var buildInfo struct {
	release string
	ok      bool
}

func init() {
	v, err := version.ReadExe(os.Args[0])
	if err == nil {
		buildInfo.release = v.Release
		buildInfo.ok = true
	}
}

// Server wires the connection endpoint, the dispatcher, its timers, and
// the admin HTTP surface together into one runnable process.
type Server struct {
	Dispatcher *Dispatcher
	tunables   config.Tunables
	mux        *http.ServeMux
	httpSrv    *graceful.Server
}

// NewServer builds a Server ready to Start. It does not bind a port
// until Start is called.
func NewServer(t config.Tunables) *Server {
	s := &Server{
		Dispatcher: NewDispatcher(t),
		tunables:   t,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/admin/rooms", s.handleRooms)
	s.mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(s.Dispatcher, w, r)
	})
	return s
}

// Start launches the dispatcher goroutine, the liveness-sweep and
// rebalance timers, and the admin HTTP server, and blocks until ctx is
// canceled or the HTTP server stops. Honeycomb tracing for the admin
// surface is enabled when HONEYCOMB_API_KEY is set; otherwise traces are
// written to stdout.
func (s *Server) Start(ctx context.Context, addr string) error {
	logStartupDiagnostics()

	go s.Dispatcher.Run(ctx)
	go s.runTimer(ctx, s.tunables.Sweep(), tickSweep)
	go s.runTimer(ctx, s.tunables.Rebalance(), tickRebalance)

	initTracing()

	handler := hnynethttp.WrapHandler(requestIDMiddleware(s.mux))
	s.httpSrv = &graceful.Server{
		Timeout: 5 * time.Second,
		Server:  &http.Server{Addr: addr, Handler: handler},
	}

	colorlog.Info("listening on", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return xerrors.Errorf("serving http: %v", err)
	}
	return nil
}

// Stop gracefully shuts down the admin HTTP server. The dispatcher and
// timers stop when the context passed to Start is canceled.
func (s *Server) Stop() {
	if s.httpSrv != nil {
		s.httpSrv.Stop(5 * time.Second)
	}
}

func (s *Server) runTimer(ctx context.Context, interval time.Duration, kind tickKind) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Dispatcher.Tick(kind)
		}
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	snaps := s.Dispatcher.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snaps); err != nil {
		colorlog.Errorf("encoding admin snapshot: %v", err)
	}
}

// requestIDMiddleware stamps every admin request with a google/uuid
// trace id header, independent of the satori-uuid participant ids used
// throughout the tree - this id never enters the registry, it only aids
// correlating a request with its honeycomb trace.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.New().String())
		next.ServeHTTP(w, r)
	})
}

func initTracing() {
	key := os.Getenv("HONEYCOMB_API_KEY")
	if key == "" {
		beeline.Init(beeline.Config{WriteKey: "debug", Dataset: "fabric", STDOUT: true})
		return
	}
	beeline.Init(beeline.Config{WriteKey: key, Dataset: "fabric"})
}

// logStartupDiagnostics reports available memory before the dispatcher
// starts taking connections.
func logStartupDiagnostics() {
	if buildInfo.ok {
		colorlog.Lvl1f("build %s", buildInfo.release)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		colorlog.Warnf("could not read memory stats: %v", err)
		return
	}
	colorlog.Lvl1f("available memory: %d MB / %d MB", vm.Available/1024/1024, vm.Total/1024/1024)
}
