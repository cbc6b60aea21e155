package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketscan/internal/scanner"
	"marketscan/internal/stream"

	"go.uber.org/zap"
)

type streamStartRequest struct {
	Symbols         []string `json:"symbols"`
	DataTypes       []string `json:"data_types"`
	Feed            string   `json:"feed"`
	DurationSeconds int      `json:"duration_seconds"`
	BufferCapacity  int      `json:"buffer_capacity"`
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var req streamStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dataTypes, err := parseDataTypes(req.DataTypes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(dataTypes) == 0 {
		dataTypes = []stream.DataType{stream.DataTypeTrade, stream.DataTypeQuote}
	}
	feedName := req.Feed
	if feedName == "" {
		feedName = s.cfg.Alpaca.Feed
	}

	opts := stream.StartOptions{
		Symbols:        req.Symbols,
		DataTypes:      dataTypes,
		Feed:           feedName,
		Duration:       time.Duration(req.DurationSeconds) * time.Second,
		BufferCapacity: req.BufferCapacity,
	}
	if opts.BufferCapacity == 0 {
		opts.BufferCapacity = s.cfg.Stream.BufferCapacity
	}

	if err := s.registry.Start(opts); err != nil {
		if errors.Is(err, stream.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subs := make(map[string][]string, len(dataTypes))
	for _, dt := range dataTypes {
		subs[string(dt)] = req.Symbols
	}
	if err := s.attachFeed(subs); err != nil {
		s.registry.Stop()
		s.logger.Error("failed to attach push feed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to connect push feed: "+err.Error())
		return
	}

	if opts.Duration > 0 {
		startedAt := s.registry.StartedAt()
		time.AfterFunc(opts.Duration, func() {
			// Only stop the session this timer was armed for.
			if s.registry.Active() && s.registry.StartedAt().Equal(startedAt) {
				s.detachFeed()
				s.registry.Stop()
				s.logger.Info("stream session ended after configured duration")
			}
		})
	}

	writeJSON(w, http.StatusOK, s.registry.ListActive())
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	s.detachFeed()
	s.registry.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type addSymbolsRequest struct {
	Symbols   []string `json:"symbols"`
	DataTypes []string `json:"data_types"`
}

func (s *Server) handleAddSymbols(w http.ResponseWriter, r *http.Request) {
	var req addSymbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dataTypes, err := parseDataTypes(req.DataTypes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.AddSymbols(req.Symbols, dataTypes); err != nil {
		if errors.Is(err, stream.ErrNotActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws != nil {
		info := s.registry.ListActive()
		subs := make(map[string][]string)
		if len(dataTypes) == 0 {
			for dt := range info.Symbols {
				subs[string(dt)] = req.Symbols
			}
		} else {
			for _, dt := range dataTypes {
				subs[string(dt)] = req.Symbols
			}
		}
		if err := ws.Subscribe(subs); err != nil {
			s.logger.Warn("feed subscribe failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, s.registry.ListActive())
}

func (s *Server) handleStreamData(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	dt, err := stream.ParseDataType(r.URL.Query().Get("data_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buf := s.registry.Buffer(symbol, dt)
	if buf == nil {
		writeError(w, http.StatusNotFound, "no buffer for symbol/data_type; is it subscribed?")
		return
	}

	var records []stream.Record
	if v := r.URL.Query().Get("recent_seconds"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			writeError(w, http.StatusBadRequest, "recent_seconds must be a positive integer")
			return
		}
		records = buf.Recent(time.Duration(secs) * time.Second)
	} else {
		records = buf.All()
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if len(records) > limit {
			records = records[len(records)-limit:] // keep the most recent
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"data_type": dt,
		"count":     len(records),
		"records":   records,
		"stats":     buf.Stats(),
	})
}

func (s *Server) handleStreamHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session":         s.registry.ListActive(),
		"buffers":         s.registry.BufferStats(),
		"total_processed": s.registry.TotalProcessed(),
		"unrouted":        s.registry.Unrouted(),
		"dropped":         s.registry.Dropped(),
	})
}

type scanStartRequest struct {
	Symbols          []string `json:"symbols"`
	MinTradesDelta   *int64   `json:"min_trades_delta"`
	MinPercentChange *float64 `json:"min_percent_change"`
	MaxResults       int      `json:"max_results"`
	SortKey          string   `json:"sort_key"`
	IntervalSeconds  int      `json:"interval_seconds"`
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req scanStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sortKey, err := scanner.ParseSortKey(req.SortKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := scanner.Params{
		Symbols:          req.Symbols,
		MinTradesDelta:   s.cfg.Scanner.MinTradesDelta,
		MinPercentChange: s.cfg.Scanner.MinPercentChange,
		MaxResults:       req.MaxResults,
		SortKey:          sortKey,
		Interval:         time.Duration(req.IntervalSeconds) * time.Second,
		BatchSize:        s.cfg.Scanner.BatchSize,
	}
	if req.MinTradesDelta != nil {
		params.MinTradesDelta = *req.MinTradesDelta
	}
	if req.MinPercentChange != nil {
		params.MinPercentChange = *req.MinPercentChange
	}
	if params.MaxResults == 0 {
		params.MaxResults = s.cfg.Scanner.MaxResults
	}
	if params.Interval == 0 {
		params.Interval = s.cfg.Scanner.Interval
	}

	if err := s.scanner.Start(params); err != nil {
		if errors.Is(err, scanner.ErrMissingCredentials) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	s.scanner.Stop()
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request) {
	sortKey, err := scanner.ParseSortKey(r.URL.Query().Get("sort_key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	status := s.scanner.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"results":         s.scanner.LatestResults(sortKey, limit),
		"last_cycle_time": status.LastCycleTime,
		"total_scanned":   status.TotalScanned,
		"running":         status.Running,
	})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func parseDataTypes(raw []string) ([]stream.DataType, error) {
	out := make([]stream.DataType, 0, len(raw))
	for _, v := range raw {
		dt, err := stream.ParseDataType(v)
		if err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
