package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/0xmhha/folderwatch/pkg/aggregator"
	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/logger"
)

const (
	defaultLimit   = 100
	maxLimit       = 1000
	defaultTop     = 10
	wsBufferSize   = 1024
	defaultTimeout = 10 * time.Second
)

// Config contains server configuration.
type Config struct {
	// Hub feeds the live stream. Required.
	Hub *Hub

	// Store serves history and summaries. Without a store those endpoints
	// answer 503.
	Store journal.Store

	// Root is reported by /healthz.
	Root string

	// WriteTimeout bounds every WebSocket write.
	// Default: 10s.
	WriteTimeout time.Duration

	// Logger receives request diagnostics.
	// Default: logger.Noop().
	Logger logger.Logger
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	hub          *Hub
	store        journal.Store
	root         string
	writeTimeout time.Duration
	logger       logger.Logger
	upgrader     websocket.Upgrader
}

// NewServer creates a server.
func NewServer(cfg Config) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}
	return &Server{
		hub:          cfg.Hub,
		store:        cfg.Store,
		root:         cfg.Root,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger.With("component", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
		},
	}
}

// NewRouter returns the HTTP API.
//
// Route layout:
//
//	GET /healthz            liveness probe
//	GET /api/v1/changes     journal query (?limit=N&since=SEQ)
//	GET /api/v1/summary     change statistics (?top=N)
//	GET /api/v1/stream      WebSocket feed of live changes (?since=SEQ replays first)
func NewRouter(srv *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(srv.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/changes", srv.handleChanges)
		r.Get("/summary", srv.handleSummary)
		r.Get("/stream", srv.handleStream)
	})

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Root        string `json:"root,omitempty"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// handleHealthz responds to GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Root: s.root}
	if s.hub != nil {
		resp.Subscribers = s.hub.Subscribers()
		resp.Published = s.hub.Published()
		resp.Dropped = s.hub.Dropped()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChanges responds to GET /api/v1/changes.
//
// Supported query parameters:
//
//	limit  maximum number of entries (default 100, max 1000)
//	since  only entries with a greater sequence number (optional)
//
// Without since the newest entries are returned, oldest first.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), defaultLimit)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "'limit' must be a positive integer")
		return
	}

	var entries []journal.Entry
	if sinceStr := q.Get("since"); sinceStr != "" {
		since, perr := strconv.ParseUint(sinceStr, 10, 64)
		if perr != nil {
			writeJSONError(w, http.StatusBadRequest, "'since' must be a sequence number")
			return
		}
		entries, err = s.store.Since(since, limit)
	} else {
		entries, err = s.store.List(limit)
	}
	if err != nil {
		s.logger.Error("failed to query journal", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to query journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

type summaryResponse struct {
	Stats aggregator.Statistics `json:"stats"`
	Top   []aggregator.NameStats `json:"top"`
}

// handleSummary responds to GET /api/v1/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	top, err := parseLimit(r.URL.Query().Get("top"), defaultTop)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "'top' must be a positive integer")
		return
	}

	entries, err := s.store.List(0)
	if err != nil {
		s.logger.Error("failed to query journal", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to query journal")
		return
	}

	agg := aggregator.Summarize(aggregator.Config{TrackIntervals: true}, entries)
	writeJSON(w, http.StatusOK, summaryResponse{
		Stats: agg.Stats(),
		Top:   agg.TopNames(top),
	})
}

// handleStream responds to GET /api/v1/stream by upgrading to a WebSocket
// and writing one JSON object per change. With ?since=SEQ the journal
// backlog after SEQ is sent before live changes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}

	var since uint64
	replay := false
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		v, err := strconv.ParseUint(sinceStr, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "'since' must be a sequence number")
			return
		}
		if s.store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "journal disabled")
			return
		}
		since, replay = v, true
	}

	// Subscribe before reading the backlog so nothing falls in between.
	output, cancel := s.hub.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	s.logger.Debug("stream client connected", "remote_addr", r.RemoteAddr)

	last := since
	if replay {
		backlog, err := s.store.Since(since, 0)
		if err != nil {
			s.logger.Error("failed to read journal backlog", "error", err)
			s.closeWithError(conn, websocket.CloseInternalServerErr, "failed to read journal")
			return
		}
		for _, e := range backlog {
			if err := s.write(conn, e); err != nil {
				return
			}
			last = e.Seq
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-output:
			if !ok {
				s.closeWithError(conn, websocket.CloseGoingAway, "shutting down")
				return
			}
			if e.Seq != 0 && e.Seq <= last {
				continue
			}
			if err := s.write(conn, e); err != nil {
				s.logger.Debug("stream client write failed", "error", err)
				return
			}
		case <-done:
			s.logger.Debug("stream client disconnected", "remote_addr", r.RemoteAddr)
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, e journal.Entry) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(e)
}

func (s *Server) closeWithError(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(s.writeTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// requestLogger logs one line per request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func parseLimit(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"error": detail})
}
