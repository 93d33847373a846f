package httpapi

import (
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/hashicorp/go-hclog"

	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

// Server is the HTTP-facing surface: the catch-all intake route plus
// the admin routes.
type Server struct {
	registry             *ratelimit.Registry
	log                  hclog.Logger
	transportErrorStatus int

	handler http.Handler
}

// Options configures a Server.
type Options struct {
	// TransportErrorStatus is the status surfaced to callers when the
	// dispatcher reports a transport error. Legal values are 200
	// and 502 (the default).
	TransportErrorStatus int
}

// NewServer builds a Server backed by registry.
func NewServer(registry *ratelimit.Registry, log hclog.Logger, opts Options) *Server {
	if opts.TransportErrorStatus == 0 {
		opts.TransportErrorStatus = http.StatusBadGateway
	}

	s := &Server{
		registry:             registry,
		log:                  log.Named("httpapi"),
		transportErrorStatus: opts.TransportErrorStatus,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/add_api", s.addAPI)
	mux.HandleFunc("/admin/get_apis", s.getAPIs)

	// Only the admin routes go through the ServeMux. Every other path is
	// an intake call carrying an absolute URL ("/http://h/a"), whose "//"
	// ServeMux would clean away and answer with a redirect.
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/add_api", "/admin/get_apis":
			mux.ServeHTTP(w, r)
		default:
			s.intake(w, r)
		}
	})
	handler = gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(recoveryLogger{s.log}),
		gorillahandlers.PrintRecoveryStack(false),
	)(handler)
	handler = gorillahandlers.LoggingHandler(s.log.StandardWriter(&hclog.StandardLoggerFileOptions{}), handler)
	s.handler = handler

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// recoveryLogger adapts hclog.Logger to gorilla/handlers' minimal
// RecoveryLogger interface.
type recoveryLogger struct {
	log hclog.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.log.Error("recovered from panic", "args", args)
}
