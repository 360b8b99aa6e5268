package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unklstewy/skyradar/internal/app"
	"github.com/unklstewy/skyradar/internal/db"
	"github.com/unklstewy/skyradar/pkg/config"
	"github.com/unklstewy/skyradar/pkg/coordinates"
	"github.com/unklstewy/skyradar/pkg/radar"
	"github.com/unklstewy/skyradar/pkg/refresh"
	"github.com/unklstewy/skyradar/pkg/tracking"
)

// redacted replaces secrets in GET /config. Sending it back in PUT keeps the
// stored value.
const redacted = "********"

// maxBodyBytes caps request bodies
const maxBodyBytes = 64 << 10

// Server holds the HTTP router and the tracker it serves.
type Server struct {
	router   *chi.Mux
	app      *app.App
	log      zerolog.Logger
	upgrader websocket.Upgrader

	// streamPeriod is the interval between websocket frames
	streamPeriod time.Duration

	// done is closed by Close to end open websocket streams
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates the API server for a.
func NewServer(a *app.App, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		app:          a,
		log:          logger.With().Str("component", "http").Logger(),
		streamPeriod: time.Second,
		done:         make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin(cfg.AllowedOrigins)}
	s.setupRoutes(cfg)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends every open websocket stream. http.Server.Shutdown does not
// track hijacked connections, so register it with RegisterOnShutdown.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg config.ServerConfig) {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Compress(5)).Group(func(r chi.Router) {
			r.Get("/aircraft", s.handleGetAircraft)
			r.Get("/aircraft/{icao}", s.handleGetAircraftByICAO)
			r.Get("/radar", s.handleGetRadar)
			r.Get("/history/{icao}", s.handleGetHistory)
		})

		r.Get("/status", s.handleGetStatus)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Post("/config/reset", s.handleResetConfig)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/zoom", s.handleZoom)
		r.Post("/locate", s.handleLocate)

		r.Get("/ws", s.handleWebSocket)
	})
}

// requestLogger logs every request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"history": s.app.History != nil,
		"tracked": s.app.Store.Len(),
	}
	stats, err := s.app.Health(r.Context())
	if err != nil {
		resp["status"] = "degraded"
		resp["history_error"] = err.Error()
	} else if stats != nil {
		resp["history_stats"] = stats
	}
	respondJSON(w, http.StatusOK, resp)
}

// aircraftResponse is a record with its observer-relative position.
type aircraftResponse struct {
	tracking.Record
	RangeKm    float64 `json:"range_km"`
	BearingDeg float64 `json:"bearing_deg"`
}

func (s *Server) aircraftView(rec tracking.Record) aircraftResponse {
	p := coordinates.BearingAndRange(s.app.View.Observer(), rec.Position)
	return aircraftResponse{Record: rec, RangeKm: p.RangeKm, BearingDeg: p.BearingDeg}
}

// handleGetAircraft returns every tracked aircraft, nearest first.
func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	records := s.app.Records()

	response := make([]aircraftResponse, 0, len(records))
	for _, rec := range records {
		response = append(response, s.aircraftView(rec))
	}
	sort.SliceStable(response, func(i, j int) bool {
		return response[i].RangeKm < response[j].RangeKm
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"aircraft": response,
		"count":    len(response),
		"observer": s.app.View.Observer(),
	})
}

func (s *Server) handleGetAircraftByICAO(w http.ResponseWriter, r *http.Request) {
	icao := chi.URLParam(r, "icao")
	s.app.Store.Advance(time.Now())

	rec, ok := s.app.Store.Get(icao)
	if !ok {
		respondError(w, http.StatusNotFound, "aircraft not tracked: "+icao)
		return
	}
	respondJSON(w, http.StatusOK, s.aircraftView(rec))
}

// radarFrame is what a web client needs to draw one radar screen.
type radarFrame struct {
	Viewport       coordinates.Viewport `json:"viewport"`
	VisibleRangeKm float64              `json:"visible_range_km"`
	Zoom           float64              `json:"zoom"`
	Points         []radar.Point        `json:"points"`
	Rings          []radar.Ring         `json:"rings"`
	Status         refresh.Status       `json:"status"`
	Summary        string               `json:"summary"`
}

// viewportFromQuery reads width, height and aspect. The radar is centred
// and fills the smaller dimension.
func viewportFromQuery(r *http.Request) (coordinates.Viewport, error) {
	num := func(key string, def float64) (float64, error) {
		v := r.URL.Query().Get(key)
		if v == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || math.IsInf(f, 0) {
			return 0, errors.New("invalid " + key + ": " + v)
		}
		return f, nil
	}

	width, err := num("width", 800)
	if err != nil {
		return coordinates.Viewport{}, err
	}
	height, err := num("height", 800)
	if err != nil {
		return coordinates.Viewport{}, err
	}
	aspect, err := num("aspect", 1)
	if err != nil {
		return coordinates.Viewport{}, err
	}

	return coordinates.Viewport{
		CenterX:  width / 2,
		CenterY:  height / 2,
		RadiusPx: math.Min(width/aspect, height) / 2,
		AspectX:  aspect,
	}, nil
}

func (s *Server) frame(vp coordinates.Viewport) radarFrame {
	now := time.Now()
	st := s.app.Scheduler.Status()
	points := s.app.Points(vp)
	vp.MaxRangeKm = s.app.Config.RadarRadiusKm()
	return radarFrame{
		Viewport:       vp,
		VisibleRangeKm: s.app.View.VisibleRangeKm(),
		Zoom:           s.app.View.Zoom(),
		Points:         points,
		Rings:          s.app.View.Rings(vp),
		Status:         st,
		Summary:        st.Summary(now),
	}
}

// handleGetRadar returns projected points and range rings for a viewport.
func (s *Server) handleGetRadar(w http.ResponseWriter, r *http.Request) {
	vp, err := viewportFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.frame(vp))
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.app.History == nil {
		respondError(w, http.StatusNotFound, "position history is disabled")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10000 {
			respondError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}

	icao := chi.URLParam(r, "icao")
	history, err := s.app.History.GetHistory(r.Context(), icao, limit)
	if err != nil {
		s.log.Error().Err(err).Str("icao24", icao).Msg("History query failed")
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if history == nil {
		history = []db.PositionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"icao24":    tracking.NormalizeICAO24(icao),
		"positions": history,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	st := s.app.Scheduler.Status()
	cfg := s.app.Config.Config()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler":    st,
		"summary":      st.Summary(time.Now()),
		"tracked":      s.app.Store.Len(),
		"auto_refresh": cfg.Refresh.AutoRefresh,
		"interval_s":   s.app.Scheduler.Interval().Seconds(),
		"ttl_s":        s.app.Evictor.TTL().Seconds(),
		"observer":     cfg.Observer,
		"history":      s.app.History != nil,
	})
}

// redact hides credentials.
func redact(cfg config.Config) config.Config {
	if cfg.ADSB.Password != "" {
		cfg.ADSB.Password = redacted
	}
	if cfg.Database.Password != "" {
		cfg.Database.Password = redacted
	}
	return cfg
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, redact(s.app.Config.Config()))
}

// handlePutConfig merges a full or partial JSON config into the live one.
// Fields left out keep their values.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	probe := s.app.Config.Config()
	if err := json.Unmarshal(body, &probe); err != nil {
		respondError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}

	err = s.app.Config.Update(func(c *config.Config) {
		adsbPassword, dbPassword := c.ADSB.Password, c.Database.Password
		_ = json.Unmarshal(body, c)
		if c.ADSB.Password == redacted {
			c.ADSB.Password = adsbPassword
		}
		if c.Database.Password == redacted {
			c.Database.Password = dbPassword
		}
	})
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.log.Info().Msg("Configuration updated over HTTP")
	respondJSON(w, http.StatusOK, redact(s.app.Config.Config()))
}

func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Config.Reset(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, redact(s.app.Config.Config()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.app.RefreshNow()
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
	})
}

// handleZoom sets the zoom factor, or steps it with {"step": "in"|"out"}.
func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Zoom float64 `json:"zoom"`
		Step string  `json:"step"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var zoom float64
	switch {
	case req.Step == "in":
		zoom = s.app.View.ZoomIn()
	case req.Step == "out":
		zoom = s.app.View.ZoomOut()
	case req.Zoom > 0:
		zoom = s.app.View.SetZoom(req.Zoom)
	default:
		respondError(w, http.StatusBadRequest, "zoom must be positive or step must be in/out")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"zoom":             zoom,
		"visible_range_km": s.app.View.VisibleRangeKm(),
	})
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := s.app.Locate(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":    err.Error(),
			"observer": s.app.Config.Config().Observer,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"observer": s.app.Config.Config().Observer,
	})
}

// handleWebSocket streams a radar frame every streamPeriod until the client
// goes away. The viewport comes from the query string as for /radar.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	vp, err := viewportFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader detects the close; clients send nothing else
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamPeriod)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(s.frame(vp)); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket client gone")
			return
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
