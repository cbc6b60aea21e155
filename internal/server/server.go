package server

import (
	"net/http"
	"sync"
	"time"

	"marketscan/config"
	"marketscan/internal/feed"
	"marketscan/internal/scanner"
	"marketscan/internal/stream"
	"marketscan/pkg/alpaca"

	"go.uber.org/zap"
)

// feedClient is the push-feed connection the stream session rides on.
// Satisfied by *alpaca.WSClient; swapped for a fake in tests.
type feedClient interface {
	SetMessageHandler(func([]byte))
	Connect(subscriptions map[string][]string) error
	Subscribe(subscriptions map[string][]string) error
	Listen()
	Stop()
}

// Server exposes the stream and scanner control surface over HTTP. All
// responses are structured JSON; nothing downstream ever parses rendered text.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *stream.Registry
	monitor  *stream.HealthMonitor
	scanner  *scanner.Scanner

	newFeedClient func() (feedClient, error)

	mu sync.Mutex
	ws feedClient
}

func New(cfg *config.Config, logger *zap.Logger, registry *stream.Registry,
	monitor *stream.HealthMonitor, sc *scanner.Scanner) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		monitor:  monitor,
		scanner:  sc,
	}
	s.newFeedClient = func() (feedClient, error) {
		apiKey, apiSecret := cfg.Alpaca.Credentials(cfg.Log.Environment)
		return alpaca.NewWSClient(cfg.Alpaca.StreamURL, apiKey, apiSecret, logger)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /stream/start", s.handleStreamStart)
	mux.HandleFunc("POST /stream/stop", s.handleStreamStop)
	mux.HandleFunc("POST /stream/symbols", s.handleAddSymbols)
	mux.HandleFunc("GET /stream/data", s.handleStreamData)
	mux.HandleFunc("GET /stream/health", s.handleStreamHealth)
	mux.HandleFunc("GET /stream/status", s.handleStreamStatus)

	mux.HandleFunc("POST /scan/start", s.handleScanStart)
	mux.HandleFunc("POST /scan/stop", s.handleScanStop)
	mux.HandleFunc("GET /scan/results", s.handleScanResults)
	mux.HandleFunc("GET /scan/status", s.handleScanStatus)

	return mux
}

// ListenAndServe blocks serving the control surface.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("control server listening", zap.String("addr", s.cfg.Server.Addr))
	return srv.ListenAndServe()
}

// attachFeed connects the push feed for an already-started session and wires
// records into the registry.
func (s *Server) attachFeed(subscriptions map[string][]string) error {
	ws, err := s.newFeedClient()
	if err != nil {
		return err
	}
	ws.SetMessageHandler(feed.MakeMessageHandler(s.logger, s.registry))
	if err := ws.Connect(subscriptions); err != nil {
		return err
	}
	go ws.Listen()

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	return nil
}

// detachFeed stops the push feed if one is attached. Idempotent.
func (s *Server) detachFeed() {
	s.mu.Lock()
	ws := s.ws
	s.ws = nil
	s.mu.Unlock()

	if ws != nil {
		ws.Stop()
	}
}
